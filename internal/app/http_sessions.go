package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"mapchat/api/internal/drawing"
	"mapchat/api/internal/export"
	"mapchat/api/internal/geo"
	"mapchat/api/internal/session"
)

// maxUploadBytes bounds one uploaded file.
const maxUploadBytes = 16 << 20

const defaultFileBase = "map-visualization"

func (s *HTTPServer) workspace(w http.ResponseWriter, r *http.Request) (*session.Workspace, bool) {
	ws, err := s.deps.Sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	return ws, true
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ws := s.deps.Sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         ws.ID,
		"created_at": ws.CreatedAt,
		"state":      ws.State(s.tierOf(r)),
	})
}

func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleFeatures(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.State(s.tierOf(r)))
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "A file field is required", nil)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read the uploaded file", nil)
		return
	}

	res, err := ws.Upload(content, header.Filename)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveIngest(string(res.Format), len(res.Features), res.Dropped, err)
	}
	if err != nil {
		log.Warn().Err(err).Str("session", ws.ID).Str("file", header.Filename).Msg("Upload rejected")
		writeDomainError(w, r, err)
		return
	}

	title, description := res.Summary()
	writeJSON(w, http.StatusOK, map[string]any{
		"format":  res.Format,
		"added":   len(res.Features),
		"dropped": res.Dropped,
		"notice":  Notice{Title: title, Description: description},
		"state":   ws.State(s.tierOf(r)),
	})
}

func (s *HTTPServer) handleCreateLayer(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	shape, err := readShape(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	t := s.tierOf(r)
	h, err := ws.Draw(shape, t)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	// The collection catches up once the create rebuild has run.
	writeJSON(w, http.StatusCreated, map[string]any{
		"layer_id": h.ID(),
		"pending":  true,
		"state":    ws.State(t),
	})
}

func (s *HTTPServer) handleEditLayer(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	shape, err := readShape(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	t := s.tierOf(r)
	if err := ws.Edit(chi.URLParam(r, "layerID"), shape, t); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.State(t))
}

func (s *HTTPServer) handleDeleteLayer(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Remove(chi.URLParam(r, "layerID")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.State(s.tierOf(r)))
}

func (s *HTTPServer) handleClickLayer(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Click(chi.URLParam(r, "layerID")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.writeSelection(w, ws)
}

func (s *HTTPServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	s.writeSelection(w, ws)
}

func (s *HTTPServer) writeSelection(w http.ResponseWriter, ws *session.Workspace) {
	selected, ok := ws.Selected()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"selected": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": selected})
}

type exportBody struct {
	FileBase string          `json:"file_base"`
	Title    string          `json:"title"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Data     json.RawMessage `json:"data"`
	// Archive stores the result in the artifact bucket and returns a link
	// instead of the file.
	Archive bool `json:"archive"`
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var body exportBody
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
	}
	if body.FileBase == "" {
		body.FileBase = defaultFileBase
	}

	features := ws.Collection.Snapshot()
	req := export.Request{
		Format:   format,
		Tier:     s.tierOf(r),
		Features: features,
		FileBase: body.FileBase,
		Region: export.Region{
			ID:       ws.ID,
			Title:    body.Title,
			Width:    body.Width,
			Height:   body.Height,
			Features: features,
		},
	}
	if len(body.Data) > 0 {
		req.Data = body.Data
	}

	res, err := s.deps.Exports.Export(r.Context(), req)
	s.observeExport(format, err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if body.Archive {
		s.writeArchived(w, r, res)
		return
	}
	writeFile(w, res)
}

func (s *HTTPServer) writeArchived(w http.ResponseWriter, r *http.Request, res *export.Result) {
	if s.deps.Artifacts == nil {
		writeError(w, http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Export archiving is not configured", nil)
		return
	}
	stored, err := s.deps.Artifacts.Put(r.Context(), res)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"filename":   res.Filename,
		"key":        stored.Key,
		"url":        stored.URL,
		"expires_at": stored.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) observeExport(format export.Format, err error) {
	if s.deps.Metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.deps.Metrics.ObserveExport(format, "ok")
	case errors.Is(err, export.ErrAuthorizationDenied):
		s.deps.Metrics.ObserveExport(format, "denied")
	default:
		s.deps.Metrics.ObserveExport(format, "failed")
	}
}

var errInvalidShape = domainError(http.StatusUnprocessableEntity, "INVALID_SHAPE", "Body must be a GeoJSON geometry, Feature or FeatureCollection", nil)

// readShape decodes a drawn shape. A FeatureCollection becomes a group whose
// members are flattened into the collection.
func readShape(r *http.Request) (drawing.Shape, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return drawing.Shape{}, errInvalidShape
	}
	return decodeShape(data)
}

func decodeShape(data []byte) (drawing.Shape, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return drawing.Shape{}, errInvalidShape
	}

	var shape drawing.Shape
	switch probe.Type {
	case "":
		return drawing.Shape{}, errInvalidShape
	case "Feature":
		gf, err := geojson.UnmarshalFeature(data)
		if err != nil || gf.Geometry == nil {
			return drawing.Shape{}, errInvalidShape
		}
		shape = drawing.Single(geo.FromGeoJSON(gf))
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return drawing.Shape{}, errInvalidShape
		}
		members := make([]geo.Feature, 0, len(fc.Features))
		for _, gf := range fc.Features {
			members = append(members, geo.FromGeoJSON(gf))
		}
		shape = drawing.Group(members...)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil || g.Geometry() == nil {
			return drawing.Shape{}, errInvalidShape
		}
		shape = drawing.Single(geo.Feature{Geometry: g.Geometry(), Properties: map[string]any{}})
	}
	if !shape.Drawable() {
		return drawing.Shape{}, errInvalidShape
	}
	return shape, nil
}

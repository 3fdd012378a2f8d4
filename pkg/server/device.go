package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// MediaItem is one entry in the mock media database
type MediaItem struct {
	System models.System
	Name   string
	Path   string
}

// Device is the in-memory state behind the mock API. Install registers a
// handler for every remote method on a Server.
type Device struct {
	mu       sync.Mutex
	version  models.VersionResponse
	systems  []models.System
	media    []MediaItem
	settings models.Settings
	readers  []models.Reader
	mappings []models.Mapping
	history  []models.HistoryEntry
	lastTok  *models.Token
	active   *models.ActiveMedia

	// pending write, if any
	writeCancel chan struct{}
	// WriteDelay completes writes automatically after the delay; zero waits
	// for readersWriteCancel or disconnect
	WriteDelay  time.Duration

	notify func(method string, params any) int
}

// NewDevice creates a device with a small media catalogue and one reader
func NewDevice() *Device {
	snes := models.System{ID: "SNES", Name: "Super Nintendo", Category: "Console"}
	genesis := models.System{ID: "Genesis", Name: "Sega Genesis", Category: "Console"}
	return &Device{
		version: models.VersionResponse{Version: "2.0.0-mock", Platform: "mock"},
		systems: []models.System{snes, genesis},
		media: []MediaItem{
			{System: snes, Name: "Super Metroid", Path: "SNES/Super Metroid.sfc"},
			{System: snes, Name: "Super Mario World", Path: "SNES/Super Mario World.sfc"},
			{System: genesis, Name: "Sonic the Hedgehog", Path: "Genesis/Sonic the Hedgehog.md"},
		},
		settings: models.Settings{
			AudioScanFeedback: true,
			ReadersAutoDetect: true,
			ReadersScanMode:   "tap",
		},
		readers: []models.Reader{
			{ID: "mock:0", Info: "Mock reader", Connected: true, Capabilities: []string{"read", "write"}},
		},
		notify: func(string, any) int { return 0 },
	}
}

// Install registers the full remote API on s and routes device
// notifications through it
func (d *Device) Install(s *Server) error {
	d.mu.Lock()
	d.notify = s.Notify
	d.mu.Unlock()

	handlers := map[string]Handler{
		models.MethodVersion:            NewHandler(d.handleVersion),
		models.MethodSystems:            NewHandler(d.handleSystems),
		models.MethodSettings:           NewHandler(d.handleSettings),
		models.MethodSettingsUpdate:     NewVoidHandler(d.handleSettingsUpdate),
		models.MethodSettingsReload:     NewVoidHandler(noop),
		models.MethodMedia:              NewHandler(d.handleMedia),
		models.MethodMediaActive:        NewHandler(d.handleMediaActive),
		models.MethodMediaActiveUpdate:  NewVoidHandler(d.handleMediaActiveUpdate),
		models.MethodMediaSearch:        NewHandler(d.handleMediaSearch),
		models.MethodMediaGenerate:      NewVoidHandler(d.handleMediaGenerate),
		models.MethodTokens:             NewHandler(d.handleTokens),
		models.MethodHistory:            NewHandler(d.handleHistory),
		models.MethodRun:                NewVoidHandler(d.handleRun),
		models.MethodStop:               NewVoidHandler(d.handleStop),
		models.MethodReaders:            NewHandler(d.handleReaders),
		models.MethodReadersWriteCancel: NewVoidHandler(d.handleWriteCancel),
		models.MethodMappings:           NewHandler(d.handleMappings),
		models.MethodNewMapping:         NewHandler(d.handleNewMapping),
		models.MethodUpdateMapping:      NewVoidHandler(d.handleUpdateMapping),
		models.MethodDeleteMapping:      NewVoidHandler(d.handleDeleteMapping),
		models.MethodMappingsReload:     NewVoidHandler(noop),
		models.MethodWrite:              NewVoidHandler(d.handleWrite),
		models.MethodLaunchersRefresh:   NewVoidHandler(noop),
	}
	for method, handler := range handlers {
		if err := s.Register(method, handler); err != nil {
			return err
		}
	}
	return nil
}

type none struct{}

func noop(context.Context, none) error { return nil }

func (d *Device) emit(method string, params any) {
	d.mu.Lock()
	notify := d.notify
	d.mu.Unlock()
	notify(method, params)
}

func (d *Device) handleVersion(context.Context, none) (models.VersionResponse, error) {
	return d.version, nil
}

func (d *Device) handleSystems(context.Context, none) (models.SystemsResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.SystemsResponse{Systems: append([]models.System(nil), d.systems...)}, nil
}

func (d *Device) handleSettings(context.Context, none) (models.Settings, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings, nil
}

func (d *Device) handleSettingsUpdate(_ context.Context, req models.UpdateSettingsRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if req.RunZapScript != nil {
		d.settings.RunZapScript = *req.RunZapScript
	}
	if req.DebugLogging != nil {
		d.settings.DebugLogging = *req.DebugLogging
	}
	if req.AudioScanFeedback != nil {
		d.settings.AudioScanFeedback = *req.AudioScanFeedback
	}
	if req.ReadersAutoDetect != nil {
		d.settings.ReadersAutoDetect = *req.ReadersAutoDetect
	}
	if req.ReadersScanMode != nil {
		d.settings.ReadersScanMode = *req.ReadersScanMode
	}
	if req.ReadersScanExitDelay != nil {
		d.settings.ReadersScanExitDelay = *req.ReadersScanExitDelay
	}
	if req.ReadersScanIgnoreSystem != nil {
		d.settings.ReadersScanIgnoreSystem = *req.ReadersScanIgnoreSystem
	}
	return nil
}

func (d *Device) handleMedia(context.Context, none) (models.MediaResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp := models.MediaResponse{
		Database: models.IndexingStatus{Exists: true},
		Active:   []models.ActiveMedia{},
	}
	if d.active != nil {
		resp.Active = append(resp.Active, *d.active)
	}
	return resp, nil
}

func (d *Device) handleMediaActive(context.Context, none) (*models.ActiveMedia, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil, nil
	}
	active := *d.active
	return &active, nil
}

func (d *Device) handleMediaActiveUpdate(_ context.Context, req *models.UpdateActiveMediaRequest) error {
	if req == nil {
		d.stopMedia()
		return nil
	}
	d.startMedia(models.ActiveMedia{
		SystemID:   req.SystemID,
		SystemName: d.systemName(req.SystemID),
		MediaPath:  req.MediaPath,
		MediaName:  req.MediaName,
	})
	return nil
}

func (d *Device) handleMediaSearch(_ context.Context, params models.SearchParams) (models.SearchResults, error) {
	query := strings.ToLower(strings.TrimSpace(params.Query))
	limit := -1
	if params.MaxResults != nil {
		if *params.MaxResults < 0 {
			return models.SearchResults{}, models.NewJSONRPCError(models.InvalidParams, "maxResults cannot be negative")
		}
		limit = *params.MaxResults
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	results := models.SearchResults{Results: []models.SearchResult{}}
	for _, item := range d.media {
		if len(params.Systems) > 0 && !contains(params.Systems, item.System.ID) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(item.Name), query) {
			continue
		}
		results.Total++
		if limit < 0 || len(results.Results) < limit {
			results.Results = append(results.Results, models.SearchResult{
				System: item.System,
				Name:   item.Name,
				Path:   item.Path,
			})
		}
	}
	return results, nil
}

func (d *Device) handleMediaGenerate(_ context.Context, params *models.GenerateMediaParams) error {
	if params != nil {
		for _, id := range params.Systems {
			if d.systemName(id) == "" {
				return models.NewJSONRPCError(models.InvalidParams, "unknown system: "+id)
			}
		}
	}
	d.emit(models.NotificationMediaIndexing, models.IndexingStatus{Exists: true, Indexing: true})
	d.emit(models.NotificationMediaIndexing, models.IndexingStatus{Exists: true, Indexing: false})
	return nil
}

func (d *Device) handleTokens(context.Context, none) (models.TokensResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp := models.TokensResponse{Active: []models.Token{}}
	if d.lastTok != nil {
		last := *d.lastTok
		resp.Last = &last
	}
	return resp, nil
}

func (d *Device) handleHistory(context.Context, none) (models.HistoryResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.HistoryResponse{Entries: append([]models.HistoryEntry{}, d.history...)}, nil
}

// handleRun treats the token text as a media path or name
func (d *Device) handleRun(_ context.Context, params models.RunParams) error {
	if params.Text == nil && params.UID == nil {
		return models.NewJSONRPCError(models.InvalidParams, "run requires text or uid")
	}

	token := models.Token{ScanTime: time.Now().UTC().Format(time.RFC3339)}
	if params.Type != nil {
		token.Type = *params.Type
	}
	if params.UID != nil {
		token.UID = *params.UID
	}
	if params.Text != nil {
		token.Text = *params.Text
	}
	if params.Data != nil {
		token.Data = *params.Data
	}

	item, found := d.lookup(token.Text)

	d.mu.Lock()
	d.lastTok = &token
	d.history = append(d.history, models.HistoryEntry{
		Time:    token.ScanTime,
		Type:    token.Type,
		UID:     token.UID,
		Text:    token.Text,
		Data:    token.Data,
		Success: found,
	})
	d.mu.Unlock()

	if !found {
		return fmt.Errorf("no media matches %q", token.Text)
	}
	d.startMedia(models.ActiveMedia{
		SystemID:   item.System.ID,
		SystemName: item.System.Name,
		MediaPath:  item.Path,
		MediaName:  item.Name,
	})
	return nil
}

func (d *Device) handleStop(context.Context, none) error {
	d.stopMedia()
	return nil
}

func (d *Device) handleReaders(context.Context, none) (models.ReadersResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.ReadersResponse{Readers: append([]models.Reader(nil), d.readers...)}, nil
}

// handleWrite blocks until the write is cancelled, the client goes away or
// WriteDelay elapses
func (d *Device) handleWrite(ctx context.Context, params models.WriteParams) error {
	if params.Text == "" {
		return models.NewJSONRPCError(models.InvalidParams, "write requires text")
	}

	d.mu.Lock()
	if len(d.readers) == 0 {
		d.mu.Unlock()
		return models.NewJSONRPCError(models.ReaderUnavailable, "")
	}
	if d.writeCancel != nil {
		close(d.writeCancel)
	}
	cancel := make(chan struct{})
	d.writeCancel = cancel
	delay := d.WriteDelay
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.writeCancel == cancel {
			d.writeCancel = nil
		}
		d.mu.Unlock()
	}()

	var done <-chan time.Time
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		done = timer.C
	}

	select {
	case <-done:
		return nil
	case <-cancel:
		return models.NewJSONRPCError(models.WriteCancelled, "")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) handleWriteCancel(context.Context, none) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeCancel != nil {
		close(d.writeCancel)
		d.writeCancel = nil
	}
	return nil
}

// WritePending reports whether a write is waiting for a tag
func (d *Device) WritePending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeCancel != nil
}

func (d *Device) handleMappings(context.Context, none) (models.MappingsResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.MappingsResponse{Mappings: append([]models.Mapping{}, d.mappings...)}, nil
}

func (d *Device) handleNewMapping(_ context.Context, params models.NewMappingParams) (models.NewMappingResponse, error) {
	if params.Pattern == "" {
		return models.NewMappingResponse{}, models.NewJSONRPCError(models.InvalidParams, "mapping pattern is required")
	}
	m := models.Mapping{
		ID:       uuid.New().String(),
		Added:    time.Now().UTC().Format(time.RFC3339),
		Label:    params.Label,
		Enabled:  params.Enabled,
		Type:     params.Type,
		Match:    params.Match,
		Pattern:  params.Pattern,
		Override: params.Override,
	}

	d.mu.Lock()
	d.mappings = append(d.mappings, m)
	d.mu.Unlock()
	return models.NewMappingResponse{ID: m.ID}, nil
}

func (d *Device) handleUpdateMapping(_ context.Context, params models.UpdateMappingParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.mappings {
		m := &d.mappings[i]
		if m.ID != params.ID {
			continue
		}
		if params.Label != nil {
			m.Label = *params.Label
		}
		if params.Enabled != nil {
			m.Enabled = *params.Enabled
		}
		if params.Type != nil {
			m.Type = *params.Type
		}
		if params.Match != nil {
			m.Match = *params.Match
		}
		if params.Pattern != nil {
			m.Pattern = *params.Pattern
		}
		if params.Override != nil {
			m.Override = *params.Override
		}
		return nil
	}
	return models.NewJSONRPCError(models.InvalidParams, "unknown mapping: "+params.ID)
}

func (d *Device) handleDeleteMapping(_ context.Context, params models.DeleteMappingParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, m := range d.mappings {
		if m.ID == params.ID {
			d.mappings = append(d.mappings[:i], d.mappings[i+1:]...)
			return nil
		}
	}
	return models.NewJSONRPCError(models.InvalidParams, "unknown mapping: "+params.ID)
}

func (d *Device) startMedia(active models.ActiveMedia) {
	active.Started = time.Now().UTC().Format(time.RFC3339)
	d.mu.Lock()
	d.active = &active
	d.mu.Unlock()
	d.emit(models.NotificationMediaStarted, active)
}

func (d *Device) stopMedia() {
	d.mu.Lock()
	wasActive := d.active != nil
	d.active = nil
	d.mu.Unlock()
	if wasActive {
		d.emit(models.NotificationMediaStopped, nil)
	}
}

func (d *Device) lookup(text string) (MediaItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, item := range d.media {
		if strings.EqualFold(item.Path, text) || strings.EqualFold(item.Name, text) {
			return item, true
		}
	}
	return MediaItem{}, false
}

func (d *Device) systemName(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sys := range d.systems {
		if sys.ID == id {
			return sys.Name
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

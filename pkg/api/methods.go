package api

import (
	"context"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// Version returns the device software version
func (c *Client) Version(ctx context.Context) (Reply[models.VersionResponse], error) {
	return invoke[models.VersionResponse](ctx, c, "Version", models.MethodVersion, nil)
}

// Systems lists the systems known to the media database
func (c *Client) Systems(ctx context.Context) (Reply[models.SystemsResponse], error) {
	return invoke[models.SystemsResponse](ctx, c, "Systems", models.MethodSystems, nil)
}

func (c *Client) Settings(ctx context.Context) (Reply[models.Settings], error) {
	return invoke[models.Settings](ctx, c, "Settings", models.MethodSettings, nil)
}

// UpdateSettings changes the fields set in req
func (c *Client) UpdateSettings(ctx context.Context, req models.UpdateSettingsRequest) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "UpdateSettings", models.MethodSettingsUpdate, req, nil)
}

// ReloadSettings makes the device re-read its settings file
func (c *Client) ReloadSettings(ctx context.Context) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "ReloadSettings", models.MethodSettingsReload, nil, nil)
}

// Media returns indexing status and the active media
func (c *Client) Media(ctx context.Context) (Reply[models.MediaResponse], error) {
	return invoke[models.MediaResponse](ctx, c, "Media", models.MethodMedia, nil)
}

// ActiveMedia returns the running media, nil when nothing is running
func (c *Client) ActiveMedia(ctx context.Context) (Reply[*models.ActiveMedia], error) {
	return invoke[*models.ActiveMedia](ctx, c, "ActiveMedia", models.MethodMediaActive, nil)
}

// UpdateActiveMedia sets the active media; nil clears it
func (c *Client) UpdateActiveMedia(ctx context.Context, req *models.UpdateActiveMediaRequest) (Reply[struct{}], error) {
	var params any
	if req != nil {
		params = req
	}
	return invokeVoid(ctx, c, "UpdateActiveMedia", models.MethodMediaActiveUpdate, params, nil)
}

func (c *Client) MediaSearch(ctx context.Context, params models.SearchParams) (Reply[models.SearchResults], error) {
	return invoke[models.SearchResults](ctx, c, "MediaSearch", models.MethodMediaSearch, params)
}

// GenerateMedia starts a media database rebuild, optionally for a subset of
// systems
func (c *Client) GenerateMedia(ctx context.Context, params *models.GenerateMediaParams) (Reply[struct{}], error) {
	var p any
	if params != nil {
		p = params
	}
	return invokeVoid(ctx, c, "GenerateMedia", models.MethodMediaGenerate, p, nil)
}

func (c *Client) Tokens(ctx context.Context) (Reply[models.TokensResponse], error) {
	return invoke[models.TokensResponse](ctx, c, "Tokens", models.MethodTokens, nil)
}

func (c *Client) History(ctx context.Context) (Reply[models.HistoryResponse], error) {
	return invoke[models.HistoryResponse](ctx, c, "History", models.MethodHistory, nil)
}

// Run launches a token as if it had been scanned
func (c *Client) Run(ctx context.Context, params models.RunParams) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "Run", models.MethodRun, params, nil)
}

// Stop exits the running media
func (c *Client) Stop(ctx context.Context) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "Stop", models.MethodStop, nil, nil)
}

func (c *Client) Readers(ctx context.Context) (Reply[models.ReadersResponse], error) {
	return invoke[models.ReadersResponse](ctx, c, "Readers", models.MethodReaders, nil)
}

// ReadersWriteCancel asks the device to abort a pending tag write
func (c *Client) ReadersWriteCancel(ctx context.Context) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "ReadersWriteCancel", models.MethodReadersWriteCancel, nil, nil)
}

func (c *Client) Mappings(ctx context.Context) (Reply[models.MappingsResponse], error) {
	return invoke[models.MappingsResponse](ctx, c, "Mappings", models.MethodMappings, nil)
}

func (c *Client) NewMapping(ctx context.Context, params models.NewMappingParams) (Reply[models.NewMappingResponse], error) {
	return invoke[models.NewMappingResponse](ctx, c, "NewMapping", models.MethodNewMapping, params)
}

func (c *Client) UpdateMapping(ctx context.Context, params models.UpdateMappingParams) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "UpdateMapping", models.MethodUpdateMapping, params, nil)
}

func (c *Client) DeleteMapping(ctx context.Context, params models.DeleteMappingParams) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "DeleteMapping", models.MethodDeleteMapping, params, nil)
}

// ReloadMappings makes the device re-read its mapping files
func (c *Client) ReloadMappings(ctx context.Context) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "ReloadMappings", models.MethodMappingsReload, nil, nil)
}

// RefreshLaunchers makes the device rescan its launcher definitions
func (c *Client) RefreshLaunchers(ctx context.Context) (Reply[struct{}], error) {
	return invokeVoid(ctx, c, "RefreshLaunchers", models.MethodLaunchersRefresh, nil, nil)
}

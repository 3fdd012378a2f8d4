package models

// Payload types for the remote API. Optional request fields are pointers so
// that unset values are omitted from the envelope.

type VersionResponse struct {
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

type System struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type SystemsResponse struct {
	Systems []System `json:"systems"`
}

type Settings struct {
	RunZapScript            bool     `json:"runZapScript"`
	DebugLogging            bool     `json:"debugLogging"`
	AudioScanFeedback       bool     `json:"audioScanFeedback"`
	ReadersAutoDetect       bool     `json:"readersAutoDetect"`
	ReadersScanMode         string   `json:"readersScanMode"`
	ReadersScanExitDelay    float64  `json:"readersScanExitDelay"`
	ReadersScanIgnoreSystem []string `json:"readersScanIgnoreSystems"`
}

type UpdateSettingsRequest struct {
	RunZapScript            *bool     `json:"runZapScript,omitempty"`
	DebugLogging            *bool     `json:"debugLogging,omitempty"`
	AudioScanFeedback       *bool     `json:"audioScanFeedback,omitempty"`
	ReadersAutoDetect       *bool     `json:"readersAutoDetect,omitempty"`
	ReadersScanMode         *string   `json:"readersScanMode,omitempty"`
	ReadersScanExitDelay    *float64  `json:"readersScanExitDelay,omitempty"`
	ReadersScanIgnoreSystem *[]string `json:"readersScanIgnoreSystems,omitempty"`
}

type IndexingStatus struct {
	Exists             bool    `json:"exists"`
	Indexing           bool    `json:"indexing"`
	TotalSteps         *int    `json:"totalSteps,omitempty"`
	CurrentStep        *int    `json:"currentStep,omitempty"`
	CurrentStepDisplay *string `json:"currentStepDisplay,omitempty"`
	TotalFiles         *int    `json:"totalFiles,omitempty"`
}

type ActiveMedia struct {
	LauncherID string `json:"launcherId,omitempty"`
	SystemID   string `json:"systemId"`
	SystemName string `json:"systemName"`
	MediaPath  string `json:"mediaPath"`
	MediaName  string `json:"mediaName"`
	Started    string `json:"started,omitempty"`
}

type MediaResponse struct {
	Database IndexingStatus `json:"database"`
	Active   []ActiveMedia  `json:"active"`
}

type UpdateActiveMediaRequest struct {
	SystemID  string `json:"systemId"`
	MediaPath string `json:"mediaPath"`
	MediaName string `json:"mediaName"`
}

type SearchParams struct {
	Query      string   `json:"query"`
	Systems    []string `json:"systems,omitempty"`
	MaxResults *int     `json:"maxResults,omitempty"`
}

type SearchResult struct {
	System System `json:"system"`
	Name   string `json:"name"`
	Path   string `json:"path"`
}

type SearchResults struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

type GenerateMediaParams struct {
	Systems []string `json:"systems,omitempty"`
}

type Token struct {
	Type     string `json:"type,omitempty"`
	UID      string `json:"uid,omitempty"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	ScanTime string `json:"scanTime,omitempty"`
}

type TokensResponse struct {
	Active []Token `json:"active"`
	Last   *Token  `json:"last,omitempty"`
}

type HistoryEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"`
	UID     string `json:"uid,omitempty"`
	Text    string `json:"text,omitempty"`
	Data    string `json:"data,omitempty"`
	Success bool   `json:"success"`
}

type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

type RunParams struct {
	Type   *string `json:"type,omitempty"`
	UID    *string `json:"uid,omitempty"`
	Text   *string `json:"text,omitempty"`
	Data   *string `json:"data,omitempty"`
	Unsafe bool    `json:"unsafe,omitempty"`
}

type WriteParams struct {
	Text string `json:"text"`
}

type Reader struct {
	ID           string   `json:"id"`
	Info         string   `json:"info,omitempty"`
	Connected    bool     `json:"connected"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type ReadersResponse struct {
	Readers []Reader `json:"readers"`
}

type Mapping struct {
	ID       string `json:"id"`
	Added    string `json:"added,omitempty"`
	Label    string `json:"label"`
	Enabled  bool   `json:"enabled"`
	Type     string `json:"type"`
	Match    string `json:"match"`
	Pattern  string `json:"pattern"`
	Override string `json:"override"`
}

type MappingsResponse struct {
	Mappings []Mapping `json:"mappings"`
}

type NewMappingParams struct {
	Label    string `json:"label"`
	Enabled  bool   `json:"enabled"`
	Type     string `json:"type"`
	Match    string `json:"match"`
	Pattern  string `json:"pattern"`
	Override string `json:"override"`
}

type UpdateMappingParams struct {
	ID       string  `json:"id"`
	Label    *string `json:"label,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
	Type     *string `json:"type,omitempty"`
	Match    *string `json:"match,omitempty"`
	Pattern  *string `json:"pattern,omitempty"`
	Override *string `json:"override,omitempty"`
}

type DeleteMappingParams struct {
	ID string `json:"id"`
}

type NewMappingResponse struct {
	ID string `json:"id"`
}

package models

// Remote method names.
const (
	MethodVersion            = "version"
	MethodSystems            = "systems"
	MethodSettings           = "settings"
	MethodSettingsUpdate     = "settingsUpdate"
	MethodSettingsReload     = "settingsReload"
	MethodMedia              = "media"
	MethodMediaActive        = "mediaActive"
	MethodMediaActiveUpdate  = "mediaActiveUpdate"
	MethodMediaSearch        = "mediaSearch"
	MethodMediaGenerate      = "mediaGenerate"
	MethodTokens             = "tokens"
	MethodHistory            = "history"
	MethodRun                = "run"
	MethodStop               = "stop"
	MethodReaders            = "readers"
	MethodReadersWriteCancel = "readersWriteCancel"
	MethodMappings           = "mappings"
	MethodNewMapping         = "newMapping"
	MethodUpdateMapping      = "updateMapping"
	MethodDeleteMapping      = "deleteMapping"
	MethodMappingsReload     = "mappingsReload"
	MethodWrite              = "write"
	MethodLaunchersRefresh   = "launchersRefresh"
)

// Notification method names pushed by the device.
const (
	NotificationMediaStarted   = "mediaStarted"
	NotificationMediaStopped   = "mediaStopped"
	NotificationMediaIndexing  = "mediaIndexing"
	NotificationTokensAdded    = "tokensAdded"
	NotificationTokensRemoved  = "tokensRemoved"
	NotificationReadersAdded   = "readersAdded"
	NotificationReadersRemoved = "readersRemoved"
)

// Methods lists every remote method the client can call.
var Methods = []string{
	MethodVersion,
	MethodSystems,
	MethodSettings,
	MethodSettingsUpdate,
	MethodSettingsReload,
	MethodMedia,
	MethodMediaActive,
	MethodMediaActiveUpdate,
	MethodMediaSearch,
	MethodMediaGenerate,
	MethodTokens,
	MethodHistory,
	MethodRun,
	MethodStop,
	MethodReaders,
	MethodReadersWriteCancel,
	MethodMappings,
	MethodNewMapping,
	MethodUpdateMapping,
	MethodDeleteMapping,
	MethodMappingsReload,
	MethodWrite,
	MethodLaunchersRefresh,
}

// IsKnownMethod reports whether method is part of the remote API.
func IsKnownMethod(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

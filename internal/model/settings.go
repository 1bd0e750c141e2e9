package model

// Setting keys (spec §6). Values are always stored as strings; typed
// access and validation live in internal/config.
const (
	SettingSightingPeriod = "sighting_period"
	SettingPortalName     = "portal_name"
	SettingChipType       = "chip_type"
	SettingReadWindow     = "read_window"
	SettingPlaySound      = "play_sound"
	SettingVolume         = "volume"
	SettingVoice          = "voice"
	SettingAutoRemote     = "auto_remote"
	SettingUploadInterval = "upload_interval"
	SettingNtfyURL        = "ntfy_url"
	SettingNtfyUser       = "ntfy_user"
	SettingNtfyPass       = "ntfy_pass"
	SettingNtfyTopic      = "ntfy_topic"
	SettingEnableNtfy     = "enable_ntfy"
	SettingScreenType     = "screen_type"

	// SettingDatabaseVersion is the reserved key holding the schema
	// version integer (spec §3, §6).
	SettingDatabaseVersion = "PORTAL_DATABASE_VERSION"
)

// CurrentDatabaseVersion is the schema version this build writes and
// expects at minimum (spec §6 "Current version = 4").
const CurrentDatabaseVersion = 4

// Voice is the announcer voice used by the (external) audio
// notifier. Only the name is relevant here; playback itself is out
// of scope (spec §1 non-goals). Per Open Question (d) the
// three-value enumeration is accepted and unknown values normalize
// to VoiceEmily.
type Voice string

const (
	VoiceEmily   Voice = "emily"
	VoiceMichael Voice = "michael"
	VoiceCustom  Voice = "custom"
)

// NormalizeVoice resolves Open Question (d): accept the three-value
// enumeration, treat anything else as VoiceEmily.
func NormalizeVoice(s string) Voice {
	switch Voice(s) {
	case VoiceMichael:
		return VoiceMichael
	case VoiceCustom:
		return VoiceCustom
	default:
		return VoiceEmily
	}
}

// Setting is a single name/value pair as carried over the control
// protocol (spec §6 settings_get/settings_set).
type Setting struct {
	Name  string
	Value string
}

// RemoteAPIKind distinguishes the remote upload targets the upload
// worker understands (spec §4.G, §9).
type RemoteAPIKind string

const (
	RemoteKindChronokeep     RemoteAPIKind = "CHRONOKEEP_REMOTE"
	RemoteKindChronokeepSelf RemoteAPIKind = "CHRONOKEEP_REMOTE_SELF"
)

// RemoteAPI is a configured upload destination.
type RemoteAPI struct {
	ID    int64
	Name  string
	Kind  RemoteAPIKind
	URI   string
	Token string
}

package collector

// Numeric encodings of categorical DB states. These are part of the external metric contract
// (spec §6, "Metric naming") and must stay bit-exact; see GLOSSARY's "bloat state" and the
// replication/sync-state entries below.

// EncodeSegmentStatus maps pg_catalog/gp segment status letters onto a stable numeric code.
func EncodeSegmentStatus(status string) float64 {
	switch status {
	case "u":
		return 1.0
	case "d":
		return 0.0
	default:
		return 0.0
	}
}

// EncodeSegmentRole maps a segment's role ('p'rimary vs anything else, e.g. mirror) to a code.
func EncodeSegmentRole(role string) float64 {
	if role == "p" {
		return 1.0
	}
	return 2.0
}

// EncodeSegmentMode maps replication mode letters to a code; missing defaults to 'n'-equivalent.
func EncodeSegmentMode(mode string) float64 {
	switch mode {
	case "s":
		return 1.0
	case "r":
		return 2.0
	case "c":
		return 3.0
	case "n":
		return 4.0
	case "":
		return 4.0
	default:
		return 0.0
	}
}

// EncodeReplicationState maps pg_stat_replication.state to a code.
func EncodeReplicationState(state string) float64 {
	switch state {
	case "streaming":
		return 1.0
	case "catchup":
		return 2.0
	case "backup":
		return 3.0
	default:
		return 0.0
	}
}

// EncodeSyncState maps pg_stat_replication.sync_state to a code.
func EncodeSyncState(state string) float64 {
	switch state {
	case "sync":
		return 2.0
	case "async":
		return 1.0
	case "potential":
		return 0.5
	default:
		return 0.0
	}
}

// BloatState categorizes a page-count-ratio derived bloat estimate into {0 none, 1 moderate, 2 severe}.
func BloatState(ratio float64) float64 {
	switch {
	case ratio >= 2.0:
		return 2.0
	case ratio >= 1.2:
		return 1.0
	default:
		return 0.0
	}
}

// defaultApplicationName is used wherever application_name is read and may be absent; unified on
// "unknown" across collectors per the spec's Open Question recommendation.
const defaultApplicationName = "unknown"

// applicationNameOrDefault returns defaultApplicationName when s is empty, else s.
func applicationNameOrDefault(s string) string {
	if s == "" {
		return defaultApplicationName
	}
	return s
}

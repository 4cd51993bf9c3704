// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package alerts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Activity strings look like
//
//	Watching ch7 ABC from LivingRoom (192.168.1.10) 1080i
//
// and session names like
//
//	6-stream-M3U-Primary-abc
//	6-file-1234-192.168.1.10
//
// The patterns below tolerate the historical variants of both.
var (
	channelNumberPattern = regexp.MustCompile(`(?i)ch(?:annel)?\s*(\d+(?:\.\d+)?)`)
	resolutionPattern    = regexp.MustCompile(`\b(\d{3,4}[pi])\b`)
	fromDevicePattern    = regexp.MustCompile(`from\s+([^:()]+)`)
	parenIPPattern       = regexp.MustCompile(`\((\d{1,3}(?:\.\d{1,3}){3})\)`)
	bareIPPattern        = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\b`)
	hexPattern           = regexp.MustCompile(`^[0-9a-fA-F]{6,}$`)
	vodFileIDPattern     = regexp.MustCompile(`file-?(\d+)`)
	vodIdentPattern      = regexp.MustCompile(`file\d+-([A-Za-z0-9_.:\-]+)`)
)

// parseChannelNumber extracts the channel number ("7", "7.1") from an
// activity string.
func parseChannelNumber(value string) string {
	if m := channelNumberPattern.FindStringSubmatch(value); m != nil {
		return m[1]
	}
	return ""
}

// parseChannelName extracts the channel call sign between the channel number
// and the "from" clause: "Watching ch7 ABC from ..." yields "ABC".
func parseChannelName(value, number string) string {
	if number == "" {
		return ""
	}
	idx := strings.Index(strings.ToLower(value), "ch"+strings.ToLower(number))
	if idx < 0 {
		return ""
	}
	rest := value[idx+len("ch")+len(number):]
	if cut := strings.Index(rest, " from "); cut >= 0 {
		rest = rest[:cut]
	}
	name := strings.TrimSpace(rest)
	// A trailing resolution token is not part of the name.
	name = strings.TrimSpace(resolutionPattern.ReplaceAllString(name, ""))
	return name
}

// parseResolution extracts a video resolution token like 1080i or 720p.
func parseResolution(value string) string {
	if m := resolutionPattern.FindStringSubmatch(value); m != nil {
		return m[1]
	}
	return ""
}

// parseDevice extracts the device name from the "from" clause. Returns ""
// when the clause only carries an IP address (the session is keyed by IP
// then).
func parseDevice(value string) string {
	m := fromDevicePattern.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	device := strings.TrimSpace(m[1])
	if bareIPPattern.MatchString(device) && bareIPPattern.FindString(device) == device {
		return ""
	}
	return device
}

// parseIP extracts the client IP, preferring the parenthesized form.
func parseIP(value string) string {
	if m := parenIPPattern.FindStringSubmatch(value); m != nil {
		return m[1]
	}
	if m := fromDevicePattern.FindStringSubmatch(value); m != nil {
		candidate := strings.TrimSpace(m[1])
		if bareIPPattern.FindString(candidate) == candidate {
			return candidate
		}
	}
	return ""
}

// parseSource derives a human-readable stream source from the session name.
// Names embed a fragment of the form "-stream-<TYPE>-<DETAIL>": an M3U
// source carries its playlist name, a TVE source its provider, and a hex id
// is a hardware tuner.
func parseSource(name string) string {
	_, rest, ok := strings.Cut(name, "-stream-")
	if !ok || rest == "" {
		return "Unknown source"
	}
	tokens := strings.Split(rest, "-")
	switch {
	case strings.EqualFold(tokens[0], "M3U") && len(tokens) > 1 && tokens[1] != "":
		return tokens[1]
	case strings.EqualFold(tokens[0], "TVE") && len(tokens) > 1 && tokens[1] != "":
		provider, _, _ := strings.Cut(tokens[1], "_")
		return "TVE (" + capitalize(provider) + ")"
	case hexPattern.MatchString(tokens[0]):
		return "Tuner (" + tokens[0] + ")"
	case tokens[0] != "":
		return tokens[0]
	default:
		return "Unknown source"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// isVODName reports whether an event name belongs to a VOD session. The
// three prefixes are historical upstream variants.
func isVODName(name string) bool {
	if strings.HasPrefix(name, "6-file-") {
		return true
	}
	return strings.HasPrefix(name, "7-") && strings.Contains(name, "file")
}

// parseVODName derives the file id and session identifier from a VOD event
// name. The identifier may be an IP, a device id, or a hash; when the name
// carries no identifier the literal "unknown" keeps the session keyable.
func parseVODName(name string) (fileID, identifier string, ok bool) {
	parts := strings.Split(name, "-")

	switch {
	case len(parts) >= 3 && parts[1] == "file":
		// 6-file-<id>[-<identifier...>]
		fileID = parts[2]
		if len(parts) > 3 {
			identifier = strings.Join(parts[3:], "-")
		}
	case len(parts) >= 2 && strings.HasPrefix(parts[1], "file") && len(parts[1]) > len("file"):
		// 7-file<id>[-<identifier...>]
		fileID = strings.TrimPrefix(parts[1], "file")
		if len(parts) > 2 {
			identifier = strings.Join(parts[2:], "-")
		}
	default:
		// Historical odd shapes: fall back to scanning.
		if m := vodFileIDPattern.FindStringSubmatch(name); m != nil {
			fileID = m[1]
		}
		if m := vodIdentPattern.FindStringSubmatch(name); m != nil {
			identifier = m[1]
		}
	}

	if fileID == "" || !isDigits(fileID) {
		return "", "", false
	}
	if identifier == "" {
		identifier = "unknown"
	}
	return fileID, identifier, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// parsePlaybackPosition converts a playback timestamp into whole seconds.
// Accepts the duration form ("1h15m42s", "15m42s", "42s") and the clock
// forms ("1:15:42", "15:42").
func parsePlaybackPosition(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return 0, false
		}
		total := 0
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 {
				return 0, false
			}
			total = total*60 + n
		}
		return total, true
	}

	var h, m, sec int
	var rest string
	if i := strings.Index(s, "h"); i >= 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, false
		}
		h, s = n, s[i+1:]
	}
	if i := strings.Index(s, "m"); i >= 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, false
		}
		m, s = n, s[i+1:]
	}
	if i := strings.Index(s, "s"); i >= 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, false
		}
		sec, rest = n, s[i+1:]
	} else {
		rest = s
	}
	if strings.TrimSpace(rest) != "" {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}

// formatPlayback renders seconds as "1h 15m 42s", dropping leading zero
// units.
func formatPlayback(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

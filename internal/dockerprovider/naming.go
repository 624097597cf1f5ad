package dockerprovider

import (
	"regexp"
	"strings"
)

var sanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

// sanitize lowercases s and collapses every run of non-alphanumeric
// characters to a single hyphen, matching the teacher's container/domain
// naming convention for turning free-form display names into safe
// identifiers.
func sanitize(s string) string {
	s = strings.ToLower(s)
	s = sanitizeRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ContainerName is the stable, uniquely decodable container name for a
// node: archetype-{sanitized_lab[:20]}-{sanitized_node} (spec section 4.2).
func ContainerName(labID, nodeName string) string {
	return "archetype-" + truncate(sanitize(labID), 20) + "-" + sanitize(nodeName)
}

// LabelKey is the Docker label used to find every container belonging to
// a lab, independent of name (spec section 4.2 "destroy" lists by both
// label and name-prefix).
const LabelKey = "archetype.lab_id"

// NamePrefix returns the prefix shared by every container name in a lab,
// used as the destroy fallback when label indexing has skewed.
func NamePrefix(labID string) string {
	return "archetype-" + truncate(sanitize(labID), 20) + "-"
}

// NetworkName is the Docker network name for one lab interface, one per
// canonical link endpoint set created against the OVS plugin driver.
func NetworkName(labID, ifaceName string) string {
	return "archetype-net-" + truncate(sanitize(labID), 20) + "-" + sanitize(ifaceName)
}

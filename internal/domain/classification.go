package domain

import "strings"

// Category is the closed set of triage categories.
type Category string

const (
	CategoryVPN         Category = "VPN"
	CategoryEmail       Category = "Email/Outlook"
	CategoryAccess      Category = "Access/AD"
	CategoryNetwork     Category = "Network"
	CategoryDevice      Category = "Laptop/Device"
	CategoryStorage     Category = "Storage/Disk"
	CategoryApplication Category = "Application"
	CategoryOther       Category = "Other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryVPN, CategoryEmail, CategoryAccess, CategoryNetwork,
	CategoryDevice, CategoryStorage, CategoryApplication, CategoryOther,
}

// Priority is the closed set of ticket priorities.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// AssignmentGroups are the naming conventions the classifier is steered
// towards. The field itself stays free text.
var AssignmentGroups = []string{
	"CIS-VPN-Support",
	"CIS-EUC-Support",
	"CIS-Network-Ops",
	"CIS-Access-Management",
	"CIS-App-Support",
}

// Classification is the categorized triage result for a ticket.
type Classification struct {
	Category        Category `json:"category"`
	Priority        Priority `json:"priority"`
	AssignmentGroup string   `json:"assignment_group"`
	Confidence      float64  `json:"confidence"`
	Reason          string   `json:"reason"`
}

var categorySynonyms = map[string]Category{
	"vpn": CategoryVPN,

	"email":   CategoryEmail,
	"outlook": CategoryEmail,
	"mail":    CategoryEmail,

	"access":           CategoryAccess,
	"ad":               CategoryAccess,
	"active directory": CategoryAccess,
	"login":            CategoryAccess,

	"network": CategoryNetwork,

	"laptop":   CategoryDevice,
	"device":   CategoryDevice,
	"desktop":  CategoryDevice,
	"pc":       CategoryDevice,
	"endpoint": CategoryDevice,

	"disk":     CategoryStorage,
	"storage":  CategoryStorage,
	"low disk": CategoryStorage,

	"application": CategoryApplication,
	"app":         CategoryApplication,

	"other": CategoryOther,
}

// categoryFallbacks is checked in order when no synonym matches exactly.
var categoryFallbacks = []struct {
	needles  []string
	category Category
}{
	{[]string{"outlook", "email"}, CategoryEmail},
	{[]string{"disk", "storage"}, CategoryStorage},
	{[]string{"laptop", "device", "desktop"}, CategoryDevice},
	{[]string{"access", "login"}, CategoryAccess},
	{[]string{"vpn"}, CategoryVPN},
	{[]string{"network"}, CategoryNetwork},
	{[]string{"app"}, CategoryApplication},
}

// NormalizeCategory maps any value onto one of the eight categories. It
// never fails: non-strings and unrecognized text become Other.
func NormalizeCategory(v any) Category {
	s, ok := v.(string)
	if !ok {
		return CategoryOther
	}
	x := strings.ToLower(strings.TrimSpace(s))
	if c, ok := categorySynonyms[x]; ok {
		return c
	}
	for _, fb := range categoryFallbacks {
		for _, needle := range fb.needles {
			if strings.Contains(x, needle) {
				return fb.category
			}
		}
	}
	return CategoryOther
}

// ParseClassification validates a mapping into a Classification. The
// category is normalized before validation.
func ParseClassification(m map[string]any) (Classification, error) {
	r := newFieldReader("classification", m)
	c := Classification{
		Category:        NormalizeCategory(m["category"]),
		Priority:        Priority(r.enum("priority", priorityNames, "")),
		AssignmentGroup: r.requiredString("assignment_group"),
		Confidence:      r.unitInterval("confidence"),
		Reason:          r.requiredString("reason"),
	}
	if err := r.err(); err != nil {
		return Classification{}, err
	}
	return c, nil
}

var priorityNames = []string{"P1", "P2", "P3", "P4"}

package identity

import (
	"sort"
	"strings"
	"time"
)

// ContactRecord is a row from the patient_emails or patient_phones table.
type ContactRecord struct {
	ID        int64
	Value     string
	IsPrimary bool
	CreatedAt time.Time
}

type ContactSources struct {
	Emails  []ContactRecord
	Phones  []ContactRecord
	Telecom []ContactPoint
}

type Contacts struct {
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	AllEmails []string `json:"allEmails"`
	AllPhones []string `json:"allPhones"`
}

// MergeContactSources combines the dedicated contact tables with the legacy
// telecom column. Table rows beat telecom entries; within a table the primary
// row wins, otherwise the first inserted.
func MergeContactSources(src ContactSources) Contacts {
	var legacyEmails, legacyPhones []string
	for _, cp := range src.Telecom {
		value := strings.TrimSpace(cp.Value)
		if value == "" {
			continue
		}
		switch cp.System {
		case SystemEmail:
			legacyEmails = append(legacyEmails, value)
		case SystemPhone, "sms", "":
			legacyPhones = append(legacyPhones, value)
		}
	}

	email, allEmails := merge(src.Emails, legacyEmails, strings.ToLower)
	phone, allPhones := merge(src.Phones, legacyPhones, normalizePhone)

	return Contacts{
		Email:     email,
		Phone:     phone,
		AllEmails: allEmails,
		AllPhones: allPhones,
	}
}

func merge(records []ContactRecord, legacy []string, key func(string) string) (string, []string) {
	ordered := make([]ContactRecord, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.Value) != "" {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	var preferred string
	for _, r := range ordered {
		if r.IsPrimary {
			preferred = strings.TrimSpace(r.Value)
			break
		}
	}
	if preferred == "" && len(ordered) > 0 {
		preferred = strings.TrimSpace(ordered[0].Value)
	}
	if preferred == "" && len(legacy) > 0 {
		preferred = legacy[0]
	}

	seen := make(map[string]bool)
	all := []string{}
	add := func(v string) {
		k := key(v)
		if seen[k] {
			return
		}
		seen[k] = true
		all = append(all, v)
	}
	for _, r := range ordered {
		add(strings.TrimSpace(r.Value))
	}
	for _, v := range legacy {
		add(v)
	}
	return preferred, all
}

func normalizePhone(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

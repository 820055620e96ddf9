package model

import (
	"strings"
	"time"
)

// Placeholder names mark synthesized records nobody has identified yet.
const (
	UnknownOwner = "Unknown Owner"
	UnknownDog   = "Unknown Dog"
)

// NormalizeName lowercases and collapses whitespace.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func IsPlaceholderOwner(name string) bool {
	return NormalizeName(name) == NormalizeName(UnknownOwner)
}

func IsPlaceholderDog(name string) bool {
	return NormalizeName(name) == NormalizeName(UnknownDog)
}

type Tenant struct {
	ID         string
	Name       string
	CalendarID string
	Timezone   string
}

// Location falls back to UTC for an empty or unknown zone name.
func (t Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Owner struct {
	ID        string
	TenantID  string
	Name      string
	Phone     string
	CreatedAt time.Time
}

type Dog struct {
	ID        string
	TenantID  string
	OwnerID   string
	Name      string
	Owner     *Owner
	CreatedAt time.Time
}

type Groomer struct {
	ID        string
	TenantID  string
	Username  string
	CreatedAt time.Time
}

func (g *Groomer) DisplayName() string {
	if g == nil {
		return ""
	}
	return strings.TrimSpace(g.Username)
}

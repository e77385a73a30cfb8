// Package config loads a transport's static configuration from an .ini
// file: which media driver to open and on what channel, the local
// node-id, the reassembly timeout, and the set of subjects/services to
// subscribe to at startup. Adapted from the teacher's EDS .ini parser
// (gocanopen's pkg/od.Parse): same gopkg.in/ini.v1 load-then-iterate-
// sections shape, generalized from CANopen object-dictionary sections to
// this transport's [transport]/[subject:N]/[service:N] sections.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/uavcan-go/govcan/pkg/session"
)

var (
	ErrMissingTransportSection = errors.New("config: missing [transport] section")
	ErrUnknownMediaDriver       = errors.New("config: media driver name is empty")
)

var (
	subjectSectionRe = regexp.MustCompile(`^subject:([0-9]+)$`)
	serviceSectionRe = regexp.MustCompile(`^service:([0-9]+)$`)
)

// SubjectSubscription is one [subject:N] section: a message subject this
// node should receive, either from any source (promiscuous) or from one
// named source node-id (selective).
type SubjectSubscription struct {
	SubjectID   uint16
	Name        string
	Promiscuous bool
	Source      uint8 // meaningful only when !Promiscuous
}

// ServiceSubscription is one [service:N] section: one side of a service
// this node should receive, as client (responses) or server (requests).
type ServiceSubscription struct {
	ServiceID   uint8
	Name        string
	Role        session.Role
	Promiscuous bool
	Source      uint8
}

// Config is a transport's static startup configuration.
type Config struct {
	MediaDriver       string
	Channel           string
	LocalNodeID       *uint8
	ReassemblyTimeout time.Duration

	Subjects []SubjectSubscription
	Services []ServiceSubscription
}

// Load reads and parses file, which may be a path, []byte, or io.Reader
// per gopkg.in/ini.v1's Load.
func Load(file any) (*Config, error) {
	f, err := ini.Load(file)
	if err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}

	transportSection, err := f.GetSection("transport")
	if err != nil {
		return nil, ErrMissingTransportSection
	}

	timeoutMs := transportSection.Key("ReassemblyTimeoutMs").MustInt(1000)
	cfg := &Config{
		MediaDriver:       transportSection.Key("MediaDriver").String(),
		Channel:           transportSection.Key("Channel").String(),
		ReassemblyTimeout: time.Duration(timeoutMs) * time.Millisecond,
	}
	if cfg.MediaDriver == "" {
		return nil, ErrUnknownMediaDriver
	}
	if raw := transportSection.Key("LocalNodeID").String(); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("config: LocalNodeID: %w", err)
		}
		id := uint8(n)
		cfg.LocalNodeID = &id
	}

	for _, section := range f.Sections() {
		name := section.Name()
		if m := subjectSectionRe.FindStringSubmatch(name); m != nil {
			sub, err := parseSubjectSection(section, m[1])
			if err != nil {
				return nil, err
			}
			cfg.Subjects = append(cfg.Subjects, sub)
			continue
		}
		if m := serviceSectionRe.FindStringSubmatch(name); m != nil {
			svc, err := parseServiceSection(section, m[1])
			if err != nil {
				return nil, err
			}
			cfg.Services = append(cfg.Services, svc)
		}
	}

	return cfg, nil
}

func parseSubjectSection(section *ini.Section, idRaw string) (SubjectSubscription, error) {
	id, err := strconv.ParseUint(idRaw, 10, 16)
	if err != nil {
		return SubjectSubscription{}, fmt.Errorf("config: subject id %q: %w", idRaw, err)
	}
	sub := SubjectSubscription{
		SubjectID: uint16(id),
		Name:      section.Key("Name").String(),
	}
	sourceRaw := strings.TrimSpace(section.Key("Source").String())
	if sourceRaw == "" || strings.EqualFold(sourceRaw, "any") {
		sub.Promiscuous = true
		return sub, nil
	}
	src, err := strconv.ParseUint(sourceRaw, 10, 8)
	if err != nil {
		return SubjectSubscription{}, fmt.Errorf("config: subject %d source: %w", id, err)
	}
	sub.Source = uint8(src)
	return sub, nil
}

func parseServiceSection(section *ini.Section, idRaw string) (ServiceSubscription, error) {
	id, err := strconv.ParseUint(idRaw, 10, 8)
	if err != nil {
		return ServiceSubscription{}, fmt.Errorf("config: service id %q: %w", idRaw, err)
	}
	svc := ServiceSubscription{
		ServiceID: uint8(id),
		Name:      section.Key("Name").String(),
	}
	switch strings.ToLower(section.Key("Role").String()) {
	case "server":
		svc.Role = session.RoleServer
	case "client", "":
		svc.Role = session.RoleClient
	default:
		return ServiceSubscription{}, fmt.Errorf("config: service %d: unknown Role %q", id, section.Key("Role").String())
	}
	sourceRaw := strings.TrimSpace(section.Key("Source").String())
	if sourceRaw == "" || strings.EqualFold(sourceRaw, "any") {
		svc.Promiscuous = true
		return svc, nil
	}
	src, err := strconv.ParseUint(sourceRaw, 10, 8)
	if err != nil {
		return ServiceSubscription{}, fmt.Errorf("config: service %d source: %w", id, err)
	}
	svc.Source = uint8(src)
	return svc, nil
}

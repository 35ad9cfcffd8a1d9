package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/logger"
	"github.com/vigilguard/pii-gateway/internal/pii"
)

// Defaults applied when the detection document omits a setting or the file
// is absent entirely.
const (
	DefaultConfidenceThreshold = 0.7
	DefaultAPITimeout          = 5 * time.Second
	DefaultMaxTextLength       = 10000
)

// Store loads the two file-backed detection documents with content
// fingerprint caching. Parsed snapshots live for the process lifetime,
// keyed by the SHA-256 of the file bytes; an edit changes the fingerprint
// and causes a single re-parse. Readers always receive complete, immutable
// policies.
type Store struct {
	detectionPath string
	rulesPath     string
	snapshots     *gocache.Cache
	logger        *logger.Logger
}

// NewStore creates a policy store over the given document paths. Either
// path may be empty or point at a missing file: the detection document
// falls back to defaults and a missing rule list disables the regex
// fallback.
func NewStore(detectionPath, rulesPath string, log *logger.Logger) *Store {
	return &Store{
		detectionPath: detectionPath,
		rulesPath:     rulesPath,
		snapshots:     gocache.New(gocache.NoExpiration, 0),
		logger:        log,
	}
}

// Current returns the effective detection policy. It re-fingerprints both
// documents on every call, so file edits become visible on the next
// request without a watcher.
func (s *Store) Current() (*pii.DetectionPolicy, error) {
	settings, err := s.detectionSettings()
	if err != nil {
		return nil, err
	}

	rules, err := s.rules()
	if err != nil {
		return nil, err
	}

	pol, err := buildPolicy(settings, rules)
	if err != nil {
		return nil, err
	}
	return pol, nil
}

// Watch invalidates eagerly on file changes so a bad edit is logged when it
// happens rather than on the next request. The returned watcher must be
// closed by the caller.
func (s *Store) Watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create policy watcher: %w", err)
	}

	for _, path := range []string{s.detectionPath, s.rulesPath} {
		if path == "" {
			continue
		}
		if err := watcher.Add(path); err != nil {
			s.logger.Warn("cannot watch policy document", zap.String("path", path), zap.Error(err))
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if _, err := s.Current(); err != nil {
					s.logger.Error("policy document change is invalid, keeping previous policy",
						zap.String("path", event.Name),
						zap.Error(err),
					)
					continue
				}
				s.logger.Info("policy document reloaded", zap.String("path", event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("policy watcher error", zap.Error(err))
			}
		}
	}()

	return watcher, nil
}

func (s *Store) detectionSettings() (*detectionSettings, error) {
	data, err := s.readDocument(s.detectionPath)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &detectionSettings{}, nil
	}

	key := "detection:" + fingerprint(data)
	if cached, ok := s.snapshots.Get(key); ok {
		return cached.(*detectionSettings), nil
	}

	var doc detectionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse detection policy %s: %w", s.detectionPath, err)
	}

	settings := doc.PIIDetection
	s.snapshots.Set(key, &settings, gocache.NoExpiration)
	s.logger.Info("detection policy loaded",
		zap.String("path", s.detectionPath),
		zap.String("fingerprint", key[len("detection:"):len("detection:")+12]),
	)
	return &settings, nil
}

func (s *Store) rules() ([]ruleEntry, error) {
	data, err := s.readDocument(s.rulesPath)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	key := "rules:" + fingerprint(data)
	if cached, ok := s.snapshots.Get(key); ok {
		return cached.([]ruleEntry), nil
	}

	var doc ruleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rule document %s: %w", s.rulesPath, err)
	}

	ordered := orderRules(doc)
	s.snapshots.Set(key, ordered, gocache.NoExpiration)
	s.logger.Info("legacy rule list loaded",
		zap.String("path", s.rulesPath),
		zap.Int("rules", len(ordered)),
	)
	return ordered, nil
}

// readDocument returns nil bytes (not an error) when the path is empty or
// the file does not exist.
func (s *Store) readDocument(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy document %s: %w", path, err)
	}
	return data, nil
}

// orderRules applies the document's explicit ordering; rules not listed in
// order keep their file position at the tail.
func orderRules(doc ruleDocument) []ruleEntry {
	if len(doc.Order) == 0 {
		return doc.Rules
	}

	byName := make(map[string]ruleEntry, len(doc.Rules))
	for _, rule := range doc.Rules {
		byName[rule.Name] = rule
	}

	ordered := make([]ruleEntry, 0, len(doc.Rules))
	seen := make(map[string]bool, len(doc.Rules))
	for _, name := range doc.Order {
		if rule, ok := byName[name]; ok && !seen[name] {
			ordered = append(ordered, rule)
			seen[name] = true
		}
	}
	for _, rule := range doc.Rules {
		if !seen[rule.Name] {
			ordered = append(ordered, rule)
			seen[rule.Name] = true
		}
	}
	return ordered
}

// buildPolicy validates the documents and assembles the effective policy.
func buildPolicy(settings *detectionSettings, rules []ruleEntry) (*pii.DetectionPolicy, error) {
	threshold := DefaultConfidenceThreshold
	if settings.ConfidenceThreshold != nil {
		threshold = *settings.ConfidenceThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("confidence_threshold %v out of range [0,1]", threshold)
	}

	mode, err := pii.ParseRedactionMode(settings.RedactionMode)
	if err != nil {
		return nil, err
	}

	timeout := DefaultAPITimeout
	if settings.APITimeoutMs > 0 {
		timeout = time.Duration(settings.APITimeoutMs) * time.Millisecond
	}

	maxLength := DefaultMaxTextLength
	if settings.MaxTextLength > 0 {
		maxLength = settings.MaxTextLength
	}

	languages := settings.Languages
	if len(languages) == 0 {
		languages = []string{pii.LanguagePolish, pii.LanguageEnglish}
	}

	tokens := make(map[pii.EntityType]string, len(settings.RedactionTokens))
	for name, token := range settings.RedactionTokens {
		tokens[pii.CanonicalType(name)] = token
	}

	fallbackEnabled := true
	if settings.RegexFallbackEnabled != nil {
		fallbackEnabled = *settings.RegexFallbackEnabled
	}

	fallbackRules := make([]pii.FallbackRule, 0, len(rules))
	for _, rule := range rules {
		target := rule.TargetEntity
		if target == "" {
			target = rule.Name
		}
		fallbackRules = append(fallbackRules, pii.FallbackRule{
			Name:    rule.Name,
			Pattern: rule.Pattern,
			Flags:   rule.Flags,
			Target:  pii.CanonicalType(target),
		})
	}

	return &pii.DetectionPolicy{
		ScoreThreshold:  threshold,
		RedactionMode:   mode,
		RedactionTokens: tokens,
		Languages:       languages,
		CallTimeout:     timeout,
		RegexFallback:   fallbackEnabled && len(fallbackRules) > 0,
		Rules:           fallbackRules,
		MaxTextLength:   maxLength,
	}, nil
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

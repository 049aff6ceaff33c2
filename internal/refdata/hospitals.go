package refdata

import (
	"fmt"
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Hospital is one deployment site with its local defaults
type Hospital struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	DefaultProtocol string `yaml:"defaultProtocol" json:"defaultProtocol,omitempty"`
	Phone           string `yaml:"phone" json:"phone,omitempty"`
}

type hospitalFile struct {
	Hospitals []Hospital `yaml:"hospitals"`
}

// HospitalService serves the hospital directory. Selection fallback chain:
// the configured hospital ID, else the first entry in the file, else none.
type HospitalService struct {
	path         string
	configuredID string

	mu        sync.RWMutex
	hospitals []Hospital
}

// NewHospitalService loads the hospital directory. A missing file is fine,
// the board simply runs without site-specific defaults.
func NewHospitalService(path, configuredID string) *HospitalService {
	s := &HospitalService{path: path, configuredID: configuredID}
	if err := s.Reload(); err != nil {
		log.Printf("⚠️ [REFDATA] Hospital directory unavailable: %v", err)
	}
	return s
}

// Reload re-reads the hospital directory from disk
func (s *HospitalService) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read hospital file: %w", err)
	}

	var file hospitalFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse hospital YAML: %w", err)
	}

	s.mu.Lock()
	s.hospitals = file.Hospitals
	s.mu.Unlock()

	log.Printf("🏥 [REFDATA] Hospital directory loaded: %d entries", len(file.Hospitals))
	return nil
}

// All returns every hospital in the directory
func (s *HospitalService) All() []Hospital {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Hospital(nil), s.hospitals...)
}

// Get returns a hospital by ID
func (s *HospitalService) Get(id string) (Hospital, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.hospitals {
		if h.ID == id {
			return h, true
		}
	}
	return Hospital{}, false
}

// Selected resolves the active hospital: the configured ID when it exists
// in the directory, otherwise the first entry, otherwise none.
func (s *HospitalService) Selected() (Hospital, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.configuredID != "" {
		for _, h := range s.hospitals {
			if h.ID == s.configuredID {
				return h, true
			}
		}
		log.Printf("⚠️ [REFDATA] Configured hospital %q not in directory, falling back", s.configuredID)
	}
	if len(s.hospitals) > 0 {
		return s.hospitals[0], true
	}
	return Hospital{}, false
}

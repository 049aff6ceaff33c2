package refdata

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"resusboard/internal/dosing"
)

// Section groups drugs for display (e.g. "Resus Drugs")
type Section struct {
	Name  string   `json:"name"`
	Drugs []string `json:"drugs"`
}

// Protocol binds drugs, drips and defibrillation steps to a clinical
// protocol identifier
type Protocol struct {
	ProtocolID string              `json:"protocolId"`
	Name       string              `json:"name,omitempty"`
	Drugs      []string            `json:"drugs,omitempty"`
	Drips      []string            `json:"drips,omitempty"`
	Defi       []dosing.DefiAction `json:"defi,omitempty"`
}

// DrugGuide is the bundled reference data file: definitions only, all
// computation happens in the dosing package.
type DrugGuide struct {
	Drugs     []dosing.Drug `json:"drugs"`
	Drips     []dosing.Drip `json:"drips"`
	Sections  []Section     `json:"sections"`
	Protocols []Protocol    `json:"protocols"`
}

// GuideService loads the drug guide and answers dosing lookups. Computed
// dose sheets are cached per weight/protocol since the bedside UI re-asks
// for the same sheet on every render.
type GuideService struct {
	path string

	mu       sync.RWMutex
	guide    *DrugGuide
	drugByID map[string]dosing.Drug
	dripByID map[string]dosing.Drip

	sheets *gocache.Cache
}

// NewGuideService loads the guide from path. A missing or malformed guide
// is a startup error, the board is useless without its reference data.
func NewGuideService(path string) (*GuideService, error) {
	s := &GuideService{
		path:   path,
		sheets: gocache.New(5*time.Minute, 10*time.Minute),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the guide file and drops all cached dose sheets.
// Called by the file watcher when the guide changes on disk.
func (s *GuideService) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read drug guide: %w", err)
	}

	var guide DrugGuide
	if err := json.Unmarshal(data, &guide); err != nil {
		return fmt.Errorf("failed to parse drug guide: %w", err)
	}

	drugByID := make(map[string]dosing.Drug, len(guide.Drugs))
	for _, drug := range guide.Drugs {
		drugByID[drug.ID] = drug
	}
	dripByID := make(map[string]dosing.Drip, len(guide.Drips))
	for _, drip := range guide.Drips {
		dripByID[drip.ID] = drip
	}

	s.mu.Lock()
	s.guide = &guide
	s.drugByID = drugByID
	s.dripByID = dripByID
	s.mu.Unlock()

	s.sheets.Flush()
	log.Printf("📚 [REFDATA] Drug guide loaded: %d drugs, %d drips, %d protocols",
		len(guide.Drugs), len(guide.Drips), len(guide.Protocols))
	return nil
}

// Guide returns the loaded reference data
func (s *GuideService) Guide() *DrugGuide {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guide
}

// Drug looks up a bolus drug definition by ID
func (s *GuideService) Drug(id string) (dosing.Drug, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	drug, ok := s.drugByID[id]
	return drug, ok
}

// Drip looks up a drip definition by ID
func (s *GuideService) Drip(id string) (dosing.Drip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	drip, ok := s.dripByID[id]
	return drip, ok
}

// Protocol looks up a protocol by ID
func (s *GuideService) Protocol(id string) (Protocol, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.guide.Protocols {
		if p.ProtocolID == id {
			return p, true
		}
	}
	return Protocol{}, false
}

// sectionDrugIDs returns the drug IDs of a named section, in order
func (s *GuideService) sectionDrugIDs(name string) []string {
	for _, section := range s.guide.Sections {
		if section.Name == name {
			return section.Drugs
		}
	}
	return nil
}

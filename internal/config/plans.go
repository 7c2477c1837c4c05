package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanDefinition describes which capabilities a plan unlocks. A plan inherits
// every capability of the plans listed in Inherits.
type PlanDefinition struct {
	Name         string   `mapstructure:"name"`
	Inherits     []string `mapstructure:"inherits"`
	Capabilities []string `mapstructure:"capabilities"`
}

type PlanCatalog struct {
	Plans []PlanDefinition `mapstructure:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []PlanDefinition{
			{Name: "FREE"},
			{Name: "PRO", Inherits: []string{"FREE"}, Capabilities: []string{"SMARTAI"}},
		},
	}
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog

	mu        sync.Mutex
	listeners []func(PlanCatalog)
}

// NewPlanCatalogHolder reads plans.yml from path (or the standard search
// locations when path is empty) and keeps it hot-reloaded.
func NewPlanCatalogHolder(cfg Config) (*PlanCatalogHolder, error) {
	v := viper.New()

	if cfg.PlansPath != "" {
		v.SetConfigFile(cfg.PlansPath)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/replyflow")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REPLYFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &PlanCatalogHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfg.PlansPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read plans config: %w", err)
		}
		holder.current.Store(DefaultPlanCatalog())
		return holder, nil
	}

	catalog, err := decodePlanCatalog(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePlanCatalog(v)
		if err != nil {
			log.Printf("[plans-config] invalid config ignored: %v", err)
			return
		}
		holder.Set(updated)
		log.Printf("[plans-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlanCatalogHolder wraps a fixed catalog; used by tests and the CLI.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

// Set publishes a new catalog and notifies subscribers.
func (h *PlanCatalogHolder) Set(catalog PlanCatalog) {
	h.current.Store(catalog)

	h.mu.Lock()
	listeners := append([]func(PlanCatalog){}, h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(catalog)
	}
}

func (h *PlanCatalogHolder) OnChange(fn func(PlanCatalog)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func decodePlanCatalog(v *viper.Viper) (PlanCatalog, error) {
	var catalog PlanCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return PlanCatalog{}, err
	}
	if err := ValidatePlanCatalog(catalog); err != nil {
		return PlanCatalog{}, err
	}
	return catalog, nil
}

func ValidatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	names := make(map[string]struct{}, len(catalog.Plans))
	for _, plan := range catalog.Plans {
		name := strings.ToUpper(strings.TrimSpace(plan.Name))
		if name == "" {
			return errors.New("plan name cannot be empty")
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("duplicate plan %q", name)
		}
		names[name] = struct{}{}
	}
	for _, plan := range catalog.Plans {
		for _, parent := range plan.Inherits {
			if _, ok := names[strings.ToUpper(strings.TrimSpace(parent))]; !ok {
				return fmt.Errorf("plan %q inherits unknown plan %q", plan.Name, parent)
			}
		}
	}
	return nil
}

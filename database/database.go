package database

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cufee/reixi/metrics"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// FileName - Name of the bolt file inside the data directory
const FileName = "data.db"

var (
	configBucket = []byte("config")
	guildsBucket = []byte("guilds")
	configKey    = []byte("global")
)

// ReloadError - A failed step of Reload
type ReloadError struct {
	Message string
	Err     error
}

func (e ReloadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e ReloadError) Unwrap() error {
	return e.Err
}

// LoadStats - Result of reading every guild record at startup
type LoadStats struct {
	Loaded int
	Failed int
}

// Store - Owns the global config and every guild's settings.
// All mutators persist before returning.
type Store struct {
	mu            sync.Mutex
	db            *bolt.DB
	root          string
	defaultPrefix string

	config GlobalConfig
	guilds map[string]*GuildSettings
	stats  LoadStats
}

// Open - Open the bolt file in dir and load every record from it
func Open(dir string, defaultPrefix string) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dir, FileName), 0600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{
		db:            db,
		root:          dir,
		defaultPrefix: defaultPrefix,
		guilds:        make(map[string]*GuildSettings),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(configBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(guildsBucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("create buckets: %w", err)
	}

	// Global config
	raw, err := s.get(configBucket, configKey)
	switch {
	case err != nil:
		return err
	case raw == nil:
		log.Warn().Str("root", s.root).Msg("config record is missing, writing a default one")
		s.config = DefaultConfig()
		if err := s.put(configBucket, configKey, s.config); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	default:
		cfg, err := decodeConfig(raw)
		if err != nil {
			log.Error().Err(err).Msg("could not parse config record, using defaults")
			cfg = DefaultConfig()
		}
		s.config = cfg
	}

	// Guild settings, a bad record only loses that guild
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(guildsBucket).ForEach(func(k, v []byte) error {
			gid := string(k)
			gs, err := decodeGuild(gid, v)
			if err != nil {
				log.Error().Err(err).Str("guild", gid).Msg("could not load guild settings")
				s.stats.Failed++
				return nil
			}
			s.guilds[gid] = &gs
			s.stats.Loaded++
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("read guild settings: %w", err)
	}

	log.Info().Int("loaded", s.stats.Loaded).Int("failed", s.stats.Failed).Msg("loaded guild settings")
	return nil
}

// Reload - Dump and/or load every record. A failed dump skips the load of that record only
func (s *Store) Reload(dump, load bool) []ReloadError {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []ReloadError

	errs = append(errs, reloadRecord("config record", dump, load,
		func() error { return s.put(configBucket, configKey, s.config) },
		func() error {
			raw, err := s.get(configBucket, configKey)
			if err != nil {
				return err
			}
			if raw == nil {
				return fmt.Errorf("record not found")
			}
			cfg, err := decodeConfig(raw)
			if err != nil {
				return err
			}
			s.config = cfg
			return nil
		},
	)...)

	for _, gid := range sortedKeys(s.guilds) {
		gid := gid
		errs = append(errs, reloadRecord("guild settings for guild "+gid, dump, load,
			func() error { return s.put(guildsBucket, []byte(gid), s.guilds[gid]) },
			func() error {
				raw, err := s.get(guildsBucket, []byte(gid))
				if err != nil {
					return err
				}
				if raw == nil {
					return fmt.Errorf("record not found")
				}
				gs, err := decodeGuild(gid, raw)
				if err != nil {
					return err
				}
				s.guilds[gid] = &gs
				return nil
			},
		)...)
	}
	return errs
}

func reloadRecord(name string, dump, load bool, put, get func() error) []ReloadError {
	if dump {
		if err := put(); err != nil {
			log.Error().Err(err).Msg("could not save " + name)
			return []ReloadError{{Message: "could not save " + name, Err: err}}
		}
		log.Debug().Msg("dumped " + name)
	}
	if load {
		if err := get(); err != nil {
			log.Error().Err(err).Msg("could not load " + name)
			return []ReloadError{{Message: "could not load " + name, Err: err}}
		}
		log.Debug().Msg("loaded " + name)
	}
	return nil
}

// Prefix - Guild prefix, or the default prefix if none is set
func (s *Store) Prefix(gid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.guilds[gid]
	if !ok || gs.Prefix == "" {
		return s.defaultPrefix
	}
	return gs.Prefix
}

// DefaultPrefix - Prefix used by guilds without their own
func (s *Store) DefaultPrefix() string {
	return s.defaultPrefix
}

// SetPrefix - Set guild prefix, empty resets to the default
func (s *Store) SetPrefix(gid string, prefix string) error {
	return s.mutate(gid, func(gs *GuildSettings) {
		gs.Prefix = prefix
	})
}

// EnabledModules - Lower case names of modules enabled in a guild
func (s *Store) EnabledModules(gid string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.view(gid).EnabledModules...)
}

// SetEnabledModules - Replace the enabled module set of a guild
func (s *Store) SetEnabledModules(gid string, modules []string) error {
	modules = lowerSet(modules)
	return s.mutate(gid, func(gs *GuildSettings) {
		gs.EnabledModules = modules
	})
}

// ModuleEnabled - Check if a module is enabled in a guild
func (s *Store) ModuleEnabled(gid string, module string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sliceContains(s.view(gid).EnabledModules, strings.ToLower(module))
}

// Privileges - Privilege for a module in a guild, empty if unset
func (s *Store) Privileges(gid string, module string) Privilege {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.view(gid).ModulePrivileges[strings.ToLower(module)]
	if !ok {
		return Privilege{Allow: []string{}, Deny: []string{}}
	}
	return p.copy()
}

// SetPrivileges - Replace the privilege of one module in a guild
func (s *Store) SetPrivileges(gid string, module string, p Privilege) error {
	p = p.copy()
	return s.mutate(gid, func(gs *GuildSettings) {
		gs.ModulePrivileges[strings.ToLower(module)] = p
	})
}

// AllPrivileges - Every module privilege set in a guild
func (s *Store) AllPrivileges(gid string) map[string]Privilege {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(gid).copy().ModulePrivileges
}

// SetAllPrivileges - Replace every module privilege of a guild
func (s *Store) SetAllPrivileges(gid string, privileges map[string]Privilege) error {
	next := make(map[string]Privilege, len(privileges))
	for k, v := range privileges {
		next[strings.ToLower(k)] = v.copy()
	}
	return s.mutate(gid, func(gs *GuildSettings) {
		gs.ModulePrivileges = next
	})
}

// ReactionRoleMessages - Reaction role messages of a guild, or the one matching mid if it is set
func (s *Store) ReactionRoleMessages(gid string, mid string) []ReactionRoleMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	rrs := s.view(gid).ReactionRoleMessages
	if mid != "" {
		for _, rr := range rrs {
			if rr.MessageID == mid {
				return []ReactionRoleMessage{rr.copy()}
			}
		}
		return []ReactionRoleMessage{}
	}
	out := make([]ReactionRoleMessage, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, rr.copy())
	}
	return out
}

// SetReactionRoleMessages - Replace the reaction role messages of a guild
func (s *Store) SetReactionRoleMessages(gid string, rrs []ReactionRoleMessage) error {
	return s.UpdateReactionRoleMessages(gid, func([]ReactionRoleMessage) []ReactionRoleMessage {
		return rrs
	})
}

// UpdateReactionRoleMessages - Read, change and persist the reaction role messages of a guild in one step
func (s *Store) UpdateReactionRoleMessages(gid string, fn func([]ReactionRoleMessage) []ReactionRoleMessage) error {
	return s.mutate(gid, func(gs *GuildSettings) {
		next := fn(gs.copy().ReactionRoleMessages)
		gs.ReactionRoleMessages = make([]ReactionRoleMessage, 0, len(next))
		// One entry per message id, the last one wins
		index := make(map[string]int, len(next))
		for _, rr := range next {
			if i, ok := index[rr.MessageID]; ok {
				gs.ReactionRoleMessages[i] = rr.copy()
				continue
			}
			index[rr.MessageID] = len(gs.ReactionRoleMessages)
			gs.ReactionRoleMessages = append(gs.ReactionRoleMessages, rr.copy())
		}
	})
}

// Config - Copy of the global config
func (s *Store) Config() GlobalConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return GlobalConfig{
		Gods:    append([]string{}, s.config.Gods...),
		Modules: append([]string{}, s.config.Modules...),
	}
}

// IsGod - Check if a user is an operator
func (s *Store) IsGod(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sliceContains(s.config.Gods, uid)
}

// GuildIDs - Ids of every guild with a record, sorted
func (s *Store) GuildIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.guilds)
}

// LoadStats - Counts from the startup load
func (s *Store) LoadStats() LoadStats {
	return s.stats
}

// Root - Data directory
func (s *Store) Root() string {
	return s.root
}

// Close - Close DB connection
func (s *Store) Close() error {
	return s.db.Close()
}

// view - Stored settings or a fresh default, callers must hold mu and must not mutate the result
func (s *Store) view(gid string) GuildSettings {
	if gs, ok := s.guilds[gid]; ok {
		return *gs
	}
	return DefaultGuildSettings(DefaultGuildID)
}

// mutate - Create the record if absent, apply fn and persist, all under mu
func (s *Store) mutate(gid string, fn func(gs *GuildSettings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gs, ok := s.guilds[gid]
	if !ok {
		fresh := DefaultGuildSettings(gid)
		gs = &fresh
		s.guilds[gid] = gs
	}
	fn(gs)

	if err := s.put(guildsBucket, []byte(gid), gs); err != nil {
		log.Error().Err(err).Str("guild", gid).Msg("could not save guild settings")
		return fmt.Errorf("save guild settings for guild %s: %w", gid, err)
	}
	log.Debug().Str("guild", gid).Msg("saved guild settings")
	return nil
}

func (s *Store) put(bucket, key []byte, v interface{}) (err error) {
	defer func() { metrics.StoreWrites.WithLabelValues(metrics.Result(err)).Inc() }()

	bts, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.Put(key, bts)
	})
}

func (s *Store) get(bucket, key []byte) (raw []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			// Bolt values are only valid inside the transaction
			raw = append([]byte{}, v...)
		}
		return nil
	})
	return raw, err
}

func decodeConfig(raw []byte) (GlobalConfig, error) {
	var cfg GlobalConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	cfg.normalize()
	return cfg, nil
}

func decodeGuild(gid string, raw []byte) (GuildSettings, error) {
	var gs GuildSettings
	if err := json.Unmarshal(raw, &gs); err != nil {
		return gs, err
	}
	gs.normalize(gid)
	return gs, nil
}

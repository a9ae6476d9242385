package carriers

import (
	"fmt"
	"net/mail"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

// Carrier is one counterparty in the directory.
type Carrier struct {
	Name     string               `yaml:"name"`
	Email    string               `yaml:"email"`
	Channel  enums.CarrierChannel `yaml:"channel"`
	Endpoint string               `yaml:"endpoint"`
	APIKey   string               `yaml:"api_key"`
}

// IsSynchronous reports whether requests to the carrier resolve inline.
func (c Carrier) IsSynchronous() bool {
	return c.Channel == enums.CarrierChannelAPI
}

type fileFormat struct {
	Carriers []Carrier `yaml:"carriers"`
}

// Directory is the immutable set of configured carriers.
type Directory struct {
	carriers []Carrier
	byName   map[string]int
	byEmail  map[string]int
}

// Load reads a YAML carrier file. Values of the form ${VAR} are expanded from
// the environment so API keys stay out of the file.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read carriers file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML carrier definitions.
func Parse(raw []byte) (*Directory, error) {
	var file fileFormat
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &file); err != nil {
		return nil, fmt.Errorf("decode carriers file: %w", err)
	}
	return New(file.Carriers)
}

// New validates the carriers and builds the lookup indexes.
func New(carriers []Carrier) (*Directory, error) {
	if len(carriers) == 0 {
		return nil, fmt.Errorf("at least one carrier must be configured")
	}
	dir := &Directory{
		carriers: make([]Carrier, 0, len(carriers)),
		byName:   make(map[string]int, len(carriers)),
		byEmail:  make(map[string]int, len(carriers)),
	}
	for i, c := range carriers {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("carrier %d: name is required", i)
		}
		channel, err := enums.ParseCarrierChannel(string(c.Channel))
		if err != nil {
			return nil, fmt.Errorf("carrier %q: %w", c.Name, err)
		}
		c.Channel = channel
		if _, dup := dir.byName[c.Name]; dup {
			return nil, fmt.Errorf("carrier %q defined twice", c.Name)
		}

		switch channel {
		case enums.CarrierChannelEmail:
			if c.Email == "" {
				return nil, fmt.Errorf("carrier %q: email channel requires an email", c.Name)
			}
		case enums.CarrierChannelAPI:
			if c.Endpoint == "" {
				return nil, fmt.Errorf("carrier %q: api channel requires an endpoint", c.Name)
			}
			c.Endpoint = strings.TrimRight(c.Endpoint, "/")
		}

		idx := len(dir.carriers)
		if c.Email != "" {
			addr, err := mail.ParseAddress(c.Email)
			if err != nil {
				return nil, fmt.Errorf("carrier %q: invalid email: %w", c.Name, err)
			}
			c.Email = addr.Address
			key := strings.ToLower(addr.Address)
			if _, dup := dir.byEmail[key]; dup {
				return nil, fmt.Errorf("carrier %q: email %s already assigned", c.Name, c.Email)
			}
			dir.byEmail[key] = idx
		}
		dir.byName[c.Name] = idx
		dir.carriers = append(dir.carriers, c)
	}
	return dir, nil
}

// All returns the carriers in configuration order.
func (d *Directory) All() []Carrier {
	out := make([]Carrier, len(d.carriers))
	copy(out, d.carriers)
	return out
}

// Names returns carrier names in configuration order.
func (d *Directory) Names() []string {
	out := make([]string, 0, len(d.carriers))
	for _, c := range d.carriers {
		out = append(out, c.Name)
	}
	return out
}

// Len is the configured carrier count used for readiness.
func (d *Directory) Len() int {
	return len(d.carriers)
}

func (d *Directory) Lookup(name string) (Carrier, bool) {
	idx, ok := d.byName[name]
	if !ok {
		return Carrier{}, false
	}
	return d.carriers[idx], true
}

// ResolveSender maps a From header ("Name <addr>" or a bare address) to the
// carrier with that contact address.
func (d *Directory) ResolveSender(from string) (Carrier, bool) {
	from = strings.TrimSpace(from)
	if from == "" {
		return Carrier{}, false
	}
	address := from
	if parsed, err := mail.ParseAddress(from); err == nil {
		address = parsed.Address
	}
	idx, ok := d.byEmail[strings.ToLower(address)]
	if !ok {
		return Carrier{}, false
	}
	return d.carriers[idx], true
}

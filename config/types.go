package config

// Asset registers a fungible asset in the local state at deploy time.
type Asset struct {
	Symbol      string       `toml:"Symbol"`
	Name        string       `toml:"Name"`
	Address     string       `toml:"Address"`
	Decimals    uint8        `toml:"Decimals"`
	Allocations []Allocation `toml:"Allocations"`
}

// Allocation mints an initial balance, in base units, to Holder.
type Allocation struct {
	Holder string `toml:"Holder"`
	Amount string `toml:"Amount"`
}

// Pauses are host-level switches consulted in addition to the engine's own
// pause flag.
type Pauses struct {
	SHO bool `toml:"SHO"`
}

// IsPaused implements native/common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case "sho":
		return p.SHO
	default:
		return false
	}
}

// Logging selects the service and environment labels passed to the logger and
// an optional rotated log file that receives a copy of every line.
type Logging struct {
	Service    string `toml:"Service"`
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

package correlation

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"teaka/internal/logger"
)

type fileConfig struct {
	Correlations map[string]map[string]float64 `mapstructure:"correlations"`
}

// LoadFile reads a matrix from a YAML/JSON/TOML file of the form
//
//	correlations:
//	  BTC/USDT: {ETH/USDT: 0.85}
//
// Keys may use any venue spelling (BTCUSDT, BTC_USDT); they are stored in
// canonical form.
func LoadFile(path string) (*Matrix, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read correlation file failed: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Matrix, error) {
	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode correlation file failed: %w", err)
	}
	return NewMatrix(fc.Correlations)
}

// Watch loads path into p and reloads it whenever the file changes. A bad
// reload keeps the previous matrix.
func Watch(path string, p *Provider, onChange func(*Matrix)) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("correlation watcher requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read correlation file failed: %w", err)
	}
	m, err := decode(v)
	if err != nil {
		return err
	}
	p.Update(m)
	v.OnConfigChange(func(evt fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			logger.Errorf("correlation reload failed (%s): %v", evt.Name, err)
			return
		}
		p.Update(next)
		logger.Infof("correlation matrix reloaded from %s symbols=%d", evt.Name, len(next.Symbols()))
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
	return nil
}

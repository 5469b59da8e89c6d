package app

import (
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/cvogel/imappush/internal/imapclient"
)

const (
	defaultDisplayCount       = 50
	defaultIdleRefreshMinutes = 24
	defaultPushPollOnConnect  = true
)

// ViperStoreConfig implements push.StoreConfig over viper, reloading
// its cached values whenever config.yaml changes on disk. The pusher
// never restarts to pick up a new displayCount/idleRefreshMinutes/
// pushPollOnConnect: the next loop iteration just reads the refreshed
// atomics.
type ViperStoreConfig struct {
	displayCount       atomic.Int64
	idleRefreshMinutes atomic.Int64
	pushPollOnConnect  atomic.Bool
}

// NewViperStoreConfig snapshots the current viper values and, if
// watch is true, starts an fsnotify watch on the config file so later
// edits are picked up live.
func NewViperStoreConfig(watch bool) *ViperStoreConfig {
	c := &ViperStoreConfig{}
	c.reload()

	if watch {
		viper.OnConfigChange(func(fsnotify.Event) {
			slog.Info("config: reloaded")
			c.reload()
		})
		viper.WatchConfig()
	}

	return c
}

func (c *ViperStoreConfig) reload() {
	dc := viper.GetInt("push.displayCount")
	if dc <= 0 {
		dc = defaultDisplayCount
	}
	irm := viper.GetInt("push.idleRefreshMinutes")
	if irm <= 0 {
		irm = defaultIdleRefreshMinutes
	}

	c.displayCount.Store(int64(dc))
	c.idleRefreshMinutes.Store(int64(irm))
	if viper.IsSet("push.pushPollOnConnect") {
		c.pushPollOnConnect.Store(viper.GetBool("push.pushPollOnConnect"))
	} else {
		c.pushPollOnConnect.Store(defaultPushPollOnConnect)
	}
}

func (c *ViperStoreConfig) DisplayCount() int       { return int(c.displayCount.Load()) }
func (c *ViperStoreConfig) IdleRefreshMinutes() int { return int(c.idleRefreshMinutes.Load()) }
func (c *ViperStoreConfig) PushPollOnConnect() bool { return c.pushPollOnConnect.Load() }

// DialConfigFromViper reads the imap.* keys into an imapclient.DialConfig.
func DialConfigFromViper() imapclient.DialConfig {
	return imapclient.DialConfig{
		Server:   viper.GetString("imap.server"),
		Port:     viper.GetInt("imap.port"),
		Username: viper.GetString("imap.username"),
		Password: viper.GetString("imap.password"),
		Folder:   viper.GetString("push.folder"),
	}
}

// StatePath returns the configured cursor file path, defaulting to
// ./imappush.state alongside the binary's working directory.
func StatePath() string {
	if p := viper.GetString("state.path"); p != "" {
		return p
	}
	return "./imappush.state"
}

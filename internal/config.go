package internal

import "time"

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	// AccountID is the authenticated account this host acts for.
	AccountID string `env:"ACCOUNT_ID,required=true"`

	FeedBufferSize int  `env:"FEED_BUFFER_SIZE,default=64"`
	HistoryPage    *int `env:"HISTORY_PAGE"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=5s"`

	DebugPort int `env:"DEBUG_PORT,default=8089"`
}

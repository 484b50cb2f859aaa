package main

import "time"

type Config struct {
	BrokerAddr      string        `env:"BROKER_ADDR,default=localhost:6379"`
	SharedTopic     string        `env:"CHAT_TOPIC,default=chat/messages"`
	UserID          string        `env:"CHAT_USER_ID,required=true"`
	UserName        string        `env:"CHAT_USER_NAME"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,default=./data/chat"`
	PostgresDSN     string        `env:"POSTGRES_DSN"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	TrackerCapacity int           `env:"TRACKER_CAPACITY,default=1024"`
	AutoReadDelay   time.Duration `env:"AUTO_READ_DELAY,default=2s"`
	TypingLinger    time.Duration `env:"TYPING_LINGER,default=3s"`
	HistoryLimit    int           `env:"HISTORY_LIMIT,default=10"`
}

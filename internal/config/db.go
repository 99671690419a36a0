package config

// DB holds the database configuration settings.
type DB struct {
	Extras      string `mapstructure:"extras"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `json:"-" mapstructure:"password"`
	Name        string `mapstructure:"name"`
	GormEngine  string `mapstructure:"engine" validate:"oneof=postgres mysql sqlite"`
	AutoMigrate bool   `mapstructure:"autoMigrate"`
	LogLevel    string `mapstructure:"logLevel" validate:"oneof=silent error warn info"`
}

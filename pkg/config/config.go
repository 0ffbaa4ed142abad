package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

type Logging struct {
	JSONFormat bool   `yaml:"json_format"`
	Level      string `yaml:"level"`
}

type Database struct {
	Type     string         `yaml:"type"`
	Settings map[string]any `yaml:"settings"`
}

// Compiler controls where `build` writes the generated gate source.
type Compiler struct {
	// OutputFile is the gate source file that build replaces wholesale.
	OutputFile string `yaml:"output_file" env:"FILESERVER_GATE_OUTPUT"`
}

type Gate struct {
	Port                int    `yaml:"port" env:"FILESERVER_GATE_PORT"`
	FilesDirectory      string `yaml:"files_directory"`
	HealthCheckFailFile string `yaml:"healthcheck_fail_file"`
}

type Config struct {
	Logging  Logging  `yaml:"logging"`
	Database Database `yaml:"database"`
	Compiler Compiler `yaml:"compiler"`
	Gate     Gate     `yaml:"gate"`
}

const DefaultGateOutput = "pkg/gate/policy_gen.go"

func Load(filePath string) (Config, error) {
	var conf Config
	if err := cleanenv.ReadConfig(filePath, &conf); err != nil {
		return Config{}, err
	}
	if conf.Compiler.OutputFile == "" {
		conf.Compiler.OutputFile = DefaultGateOutput
	}
	if conf.Gate.Port == 0 {
		conf.Gate.Port = 3333
	}
	if conf.Gate.FilesDirectory == "" {
		conf.Gate.FilesDirectory = "site"
	}
	return conf, nil
}

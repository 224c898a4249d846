// Package config loads process configuration from the environment and
// validates it before anything opens a connection or a database.
package config

// Package environment names the deployment environments the service runs in
// and parses them from configuration values such as APP_ENV.
package environment

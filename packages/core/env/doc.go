// Package env loads .env files whose variables are injected into worker
// process environments, so Python tests can read configuration through
// os.environ without the controller exporting anything globally.
package env

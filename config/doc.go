// Package config loads the vtafeed configuration.
//
// A Loader starts from Default, merges each configuration layer over it in
// the order the layers were added and finally applies environment overrides.
// Layers may be JSON, YAML (.yaml, .yml) or TOML; only the keys present in a
// layer replace earlier values, so a layer can be as small as one setting.
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/vtafeed/base.yaml")
//	loader.AddLayer("court3.toml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// Environment variables use the VTA_ prefix followed by the section and the
// field, for example VTA_LISTENER_PORT=6001, VTA_NATS_ENABLED=true or
// VTA_JOURNAL_PATH=/var/lib/vta/journal.db.
//
// Validation failures are classified with errors.WrapInvalid.
package config

package fixtures

import (
	_ "embed"
)

//go:embed config/config.yaml.template
var ConfigTemplate []byte

//go:embed config/kernels.yaml.template
var KernelCatalogTemplate []byte

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// KernelSource locates one kernel entry point and the options it is built with.
type KernelSource struct {
	Path              string  `yaml:"path"`
	Entry             string  `yaml:"entry"`
	CustomOptions     *string `yaml:"customOptions"`
	AdditionalOptions *string `yaml:"additionalOptions"`
}

// KernelCatalog maps kernel names to their sources.
type KernelCatalog struct {
	Kernels map[string]KernelSource `yaml:"kernels"`
}

func LoadKernelCatalog(path string) (*KernelCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var catalog KernelCatalog
	err = yaml.Unmarshal(data, &catalog)
	if err != nil {
		return nil, err
	}

	for name, k := range catalog.Kernels {
		if k.Path == "" {
			return nil, fmt.Errorf("kernel %s: path is required", name)
		}
		if k.Entry == "" {
			k.Entry = name
		}
		if !filepath.IsAbs(k.Path) {
			k.Path = filepath.Join(filepath.Dir(path), k.Path)
		}
		catalog.Kernels[name] = k
	}
	return &catalog, nil
}

// Lookup returns the source registered under name.
func (c *KernelCatalog) Lookup(name string, log *zap.Logger) (KernelSource, error) {
	k, ok := c.Kernels[name]
	if !ok {
		log.Warn("kernel not found in kernel catalog", zap.String("kernel", name))
		return KernelSource{}, fmt.Errorf("kernel not found in kernel catalog: %s", name)
	}
	return k, nil
}

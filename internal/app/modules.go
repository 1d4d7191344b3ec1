package app

import (
	"github.com/vk/connectome/internal/registry"
	"github.com/vk/connectome/modules/datasink"
	"github.com/vk/connectome/modules/freesurfer_values"
	"github.com/vk/connectome/modules/fsrename"
	"github.com/vk/connectome/modules/merge"
	"github.com/vk/connectome/modules/rename"
	"github.com/vk/connectome/modules/selectfiles"
	"github.com/vk/connectome/modules/split"
)

// coreModules is the definitive list of all Go handler modules that are
// compiled into the connectome binary.
var coreModules = []registry.Module{
	&selectfiles.Module{},
	&rename.Module{},
	&merge.Module{},
	&datasink.Module{},
	&fsrename.Module{},
	&freesurfer_values.Module{},
	&split.Module{},
}

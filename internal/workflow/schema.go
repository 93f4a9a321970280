package workflow

import "github.com/me/ilcdirac/pkg/model"

// kindSpec is the fixed parameter schema of a step kind and the
// capabilities it exposes to later steps.
type kindSpec struct {
	params   []model.Parameter
	produces map[model.Capability]string
}

func str(name, desc string) model.Parameter {
	return model.Parameter{Name: name, Type: model.TypeString, Default: "", Description: desc}
}

func integer(name string, def int, desc string) model.Parameter {
	return model.Parameter{Name: name, Type: model.TypeInt, Default: def, Description: desc}
}

func flag(name, desc string) model.Parameter {
	return model.Parameter{Name: name, Type: model.TypeBool, Default: false, Description: desc}
}

func list(name, desc string) model.Parameter {
	return model.Parameter{Name: name, Type: model.TypeList, Default: []string{}, Description: desc}
}

var (
	pVersion = str("applicationVersion", "Application version")
	pLog     = str("applicationLog", "Application log file")
	pDebug   = flag("debug", "Verbose application output")
	pOutput  = str("outputFile", "Output file name")
)

var kindSpecs = map[model.StepKind]kindSpec{
	model.KindMokka: {
		params: []model.Parameter{
			pVersion,
			str("steeringFile", "Mokka steering file"),
			str("macFile", "Geant4 macro file"),
			str("inputGenfile", "Generator input file"),
			str("detectorModel", "Detector model"),
			integer("numberOfEvents", 0, "Number of events to simulate"),
			integer("startFrom", 0, "First event to read from the generator file"),
			integer("randomSeed", 0, "Random seed"),
			str("dbSlice", "Detector database dump"),
			pOutput, pLog, pDebug,
		},
		produces: map[model.Capability]string{
			model.CapEventCollection: "outputFile",
			model.CapEventCount:      "numberOfEvents",
		},
	},
	model.KindMarlin: {
		params: []model.Parameter{
			pVersion,
			str("inputXML", "Marlin steering file"),
			str("inputGEAR", "GEAR geometry file"),
			list("inputSlcio", "Input LCIO files"),
			integer("EvtsToProcess", -1, "Number of events to process"),
			pOutput, pLog, pDebug,
		},
		produces: map[model.Capability]string{
			model.CapEventCollection: "outputFile",
			model.CapEventCount:      "EvtsToProcess",
		},
	},
	model.KindSLIC: {
		params: []model.Parameter{
			pVersion,
			str("inputmacFile", "Geant4 macro file"),
			str("stdhepFile", "Generator input file"),
			str("detectorModel", "Detector model"),
			integer("numberOfEvents", 10000, "Number of events to simulate"),
			integer("startFrom", 0, "First event to read from the generator file"),
			integer("randomSeed", 0, "Random seed"),
			pOutput, pLog, pDebug,
		},
		produces: map[model.Capability]string{
			model.CapEventCollection:  "outputFile",
			model.CapEventCount:       "numberOfEvents",
			model.CapDetectorGeometry: "detectorModel",
		},
	},
	model.KindLCSIM: {
		params: []model.Parameter{
			pVersion,
			str("inputXML", "LCSIM steering file"),
			list("inputSlcio", "Input LCIO files"),
			str("aliasproperties", "alias.properties file"),
			integer("EvtsToProcess", -1, "Number of events to process"),
			pOutput, pLog, pDebug,
		},
		produces: map[model.Capability]string{
			model.CapEventCollection: "outputFile",
			model.CapEventCount:      "EvtsToProcess",
		},
	},
	model.KindSLICPandora: {
		params: []model.Parameter{
			pVersion,
			str("DetectorXML", "Detector geometry"),
			str("PandoraSettings", "Pandora settings file"),
			list("inputSlcio", "Input LCIO files"),
			integer("EvtsToProcess", -1, "Number of events to process"),
			pOutput, pLog, pDebug,
		},
		produces: map[model.Capability]string{
			model.CapEventCollection: "outputFile",
			model.CapEventCount:      "EvtsToProcess",
		},
	},
	model.KindWhizard: {
		params: []model.Parameter{
			pVersion,
			str("InputFile", "Whizard input template"),
			str("EvtType", "Process name"),
			integer("NbOfEvts", 0, "Number of events to generate"),
			integer("Lumi", 0, "Luminosity to generate"),
			integer("RandomSeed", 0, "Random seed"),
			pOutput, pLog, pDebug,
		},
		produces: map[model.Capability]string{
			model.CapEventCollection: "outputFile",
			model.CapEventCount:      "NbOfEvts",
		},
	},
	model.KindRootMacro: {
		params: []model.Parameter{
			pVersion,
			str("script", "ROOT macro"),
			str("arguments", "Macro arguments"),
			pLog,
		},
	},
	model.KindRootExecutable: {
		params: []model.Parameter{
			pVersion,
			str("script", "Executable linked against ROOT"),
			str("arguments", "Executable arguments"),
			pLog,
		},
	},
	model.KindApplicationScript: {
		params: []model.Parameter{
			str("applicationName", "Application name"),
			pVersion,
			str("script", "User script"),
			str("arguments", "Script arguments"),
			pLog,
		},
	},
	model.KindGetSRM: {
		params: []model.Parameter{
			str("srmfiles", "File records to fetch, as a JSON array"),
		},
		produces: map[model.Capability]string{
			model.CapStagedFiles: "srmfiles",
		},
	},
	model.KindStdHepConverter: {
		params: []model.Parameter{
			pVersion, pLog, pDebug,
		},
	},
}

// produces returns the parameter through which kind exposes c, or "".
func produces(kind model.StepKind, c model.Capability) string {
	return kindSpecs[kind].produces[c]
}

// Schema returns a copy of the parameter schema of kind.
func Schema(kind model.StepKind) []model.Parameter {
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil
	}
	out := make([]model.Parameter, len(spec.params))
	copy(out, spec.params)
	return out
}

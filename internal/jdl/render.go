package jdl

import (
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// Job execution entry point on the worker.
const (
	Executable = "$DIRACROOT/scripts/dirac-jobexec"
	Arguments  = "jobDescription.xml -o LogLevel=info"
)

// Render returns the JDL describing wf. extra attributes, if any, are
// appended in name order.
func Render(wf *model.Workflow, extra map[string]string) *ClassAd {
	ad := NewClassAd()
	ad.InsertString("JobName", wf.Name)
	ad.InsertString("Executable", Executable)
	ad.InsertString("Arguments", Arguments)
	ad.InsertString("StdOutput", "std.out")
	ad.InsertString("StdError", "std.err")
	ad.InsertString("JobType", "User")
	ad.InsertString("Origin", "ILCDIRAC")

	sandbox := append([]string{"jobDescription.xml"}, wf.InputSandbox...)
	ad.InsertList("InputSandbox", sandbox)
	ad.InsertList("OutputSandbox", append([]string{"std.out", "std.err"}, wf.OutputSandbox...))

	if wf.SystemConfig != "" {
		ad.InsertString("SystemConfig", wf.SystemConfig)
	}
	if pkgs := wf.Packages(); len(pkgs) > 0 {
		ad.InsertList("SoftwarePackages", pkgs)
	}
	if len(wf.InputData) > 0 {
		lfns := make([]string, len(wf.InputData))
		for i, f := range wf.InputData {
			lfns[i] = "LFN:" + strings.TrimPrefix(f, "LFN:")
		}
		ad.InsertList("InputData", lfns)
	}
	if len(wf.OutputData) > 0 {
		ad.InsertList("UserOutputData", wf.OutputData)
		if len(wf.OutputSE) > 0 {
			ad.InsertList("UserOutputSE", wf.OutputSE)
		}
		if wf.OutputPath != "" {
			ad.InsertString("UserOutputPath", wf.OutputPath)
		}
	}
	if len(wf.BannedSites) > 0 {
		ad.InsertList("BannedSites", wf.BannedSites)
	}
	for _, name := range sortedNames(extra) {
		ad.Insert(name, extra[name])
	}
	return ad
}

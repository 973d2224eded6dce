//go:build linux

package hostprobe

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// supportedAMDGPUs are the AMD GPU targets that should use ROCm.
var supportedAMDGPUs = map[string]bool{
	"gfx908":  true,
	"gfx90a":  true,
	"gfx942":  true,
	"gfx1010": true,
	"gfx1030": true,
	"gfx1100": true,
	"gfx1200": true,
	"gfx1201": true,
	"gfx1151": true,
}

// supportedGPUAvailable probes for a supported AMD or MTHREADS GPU on Linux
// by walking the KFD topology and, failing that, shelling out to muInfo.
// It reports the provider vendor tag used by the selector.
func supportedGPUAvailable() (string, bool) {
	if ok, err := hasSupportedAMDGPU(); err == nil && ok {
		return "rocm", true
	}
	if ok, err := hasSupportedMTHREADSGPU(); err == nil && ok {
		return "musa", true
	}
	return "", false
}

func hasSupportedAMDGPU() (bool, error) {
	topologyDir := "/sys/class/kfd/kfd/topology/nodes/"
	info, err := os.Stat(topologyDir)
	if err != nil || !info.IsDir() {
		return false, nil
	}

	entries, err := os.ReadDir(topologyDir)
	if err != nil {
		return false, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	reTarget := regexp.MustCompile(`gfx_target_version[ \t]+([0-9]+)`)

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		propPath := filepath.Join(topologyDir, e.Name(), "properties")

		f, err := os.Open(propPath)
		if err != nil {
			continue
		}

		found := scanForSupportedGFX(f, reTarget)
		f.Close()
		if found {
			return true, nil
		}
	}

	return false, nil
}

func scanForSupportedGFX(f *os.File, reTarget *regexp.Regexp) bool {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		matches := reTarget.FindStringSubmatch(sc.Text())
		if len(matches) < 2 {
			continue
		}

		deviceID, err := strconv.Atoi(matches[1])
		if err != nil || deviceID == 0 {
			continue
		}

		var majorVer, minorVer, steppingVer int
		if gfxOverride := os.Getenv("HSA_OVERRIDE_GFX_VERSION"); gfxOverride != "" {
			parts := strings.Split(strings.TrimSpace(gfxOverride), ".")
			if len(parts) != 3 {
				continue
			}
			mv, err1 := strconv.Atoi(parts[0])
			nv, err2 := strconv.Atoi(parts[1])
			sv, err3 := strconv.Atoi(parts[2])
			if err1 != nil || err2 != nil || err3 != nil || mv > 63 || nv > 255 || sv > 255 {
				continue
			}
			majorVer, minorVer, steppingVer = mv, nv, sv
		} else {
			majorVer = (deviceID / 10000) % 100
			minorVer = (deviceID / 100) % 100
			steppingVer = deviceID % 100
		}

		gfx := "gfx" +
			strconv.FormatInt(int64(majorVer), 10) +
			strconv.FormatInt(int64(minorVer), 16) +
			strconv.FormatInt(int64(steppingVer), 16)

		if supportedAMDGPUs[gfx] {
			return true
		}
	}
	return false
}

func hasSupportedMTHREADSGPU() (bool, error) {
	devEntries, err := os.ReadDir("/dev")
	if err != nil {
		return false, err
	}

	found := false
	for _, entry := range devEntries {
		if strings.HasPrefix(entry.Name(), "mtgpu") {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	out, err := exec.Command("muInfo").CombinedOutput()
	if err != nil {
		return false, err
	}

	reDriver := regexp.MustCompile(`Driver Version:[ \t]+([0-9.]+)`)
	reCompute := regexp.MustCompile(`compute capability:[ \t]+([0-9.]+)`)

	var driverVerStr, computeCapStr string
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := reDriver.FindStringSubmatch(line); len(m) == 2 {
			driverVerStr = m[1]
		}
		if m := reCompute.FindStringSubmatch(line); len(m) == 2 {
			computeCapStr = m[1]
		}
	}

	if driverVerStr == "" || computeCapStr == "" {
		return false, nil
	}

	driverVer, _ := strconv.ParseFloat(driverVerStr, 64)
	computeCap, _ := strconv.ParseFloat(computeCapStr, 64)

	return driverVer >= 4.3 && computeCap >= 2.1, nil
}

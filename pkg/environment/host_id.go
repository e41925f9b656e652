//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package environment

import (
	"crypto/sha1"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	machineIDPath = "/etc/machine-id"
	hostIDLength  = 10
)

// HostID returns a stable ID of this host, based on the machine ID or,
// when that is not available, the hardware addresses of the network interfaces.
func HostID() (string, error) {
	if content, err := os.ReadFile(machineIDPath); err == nil {
		return hashHostID([]byte(strings.TrimSpace(string(content)))), nil
	}

	ifs, err := net.Interfaces()
	if err != nil {
		return "", errors.Wrap(err, "failed to list network interfaces")
	}
	list := make([]string, 0, len(ifs))
	for _, v := range ifs {
		f := v.Flags
		if f&net.FlagUp != 0 && f&net.FlagLoopback == 0 {
			if h := v.HardwareAddr.String(); len(h) > 0 {
				list = append(list, h)
			}
		}
	}
	sort.Strings(list) // sort host IDs
	list = append(list, runtime.GOOS, runtime.GOARCH)
	return hashHostID([]byte(strings.Join(list, ","))), nil
}

func hashHostID(data []byte) string {
	id := fmt.Sprintf("%x", sha1.Sum(data))
	return id[:hostIDLength]
}

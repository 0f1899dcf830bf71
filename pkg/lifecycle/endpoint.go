package lifecycle

import (
	"fmt"

	"github.com/cuemby/taskrun/pkg/engine"
	"github.com/cuemby/taskrun/pkg/types"
)

// inContainerEnv names the environment flag that marks the control
// plane's own process as running inside a container. Nothing reads it:
// the connectivity mode comes only from the configured setting (see
// RuntimeSettings.Connectivity), which has no auto-detect mode.
const inContainerEnv = "TASKRUN_RUNNING_IN_CONTAINER"

// resolveEndpoint computes the worker RPC address for a managed
// container under the configured connectivity mode. HostPortOnly
// degrades to the bridge DNS form when no published port is on
// record: the engine does not introspect container IPs (see
// engine.ContainerIP), so there is nothing to wire an iptables DNAT
// rule to.
func resolveEndpoint(mode types.ConnectivityMode, containerID string, hostPort int) string {
	if mode == types.ConnectivityHostPort && hostPort > 0 {
		return fmt.Sprintf("127.0.0.1:%d", hostPort)
	}
	return fmt.Sprintf("%s:%d", containerID, engine.WorkerPort)
}

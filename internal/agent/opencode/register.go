package opencode

import "github.com/aotsukiqx/opendian/internal/agent"

func init() {
	agent.Register(agent.BackendOpenCode, func(cfg agent.BackendConfig) agent.Session {
		return NewAdapter(cfg)
	})
}

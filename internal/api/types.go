package api

// KernelInfo is one catalogue entry with the tiling config parsed out of its
// name.
type KernelInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	TileM    int    `json:"tile_m"`
	TileN    int    `json:"tile_n"`
	TileK    int    `json:"tile_k"`
	ClusterM int    `json:"cluster_m"`
	ClusterN int    `json:"cluster_n"`
	ClusterK int    `json:"cluster_k"`
	Schedule string `json:"schedule"`
}

type KernelListResponse struct {
	Object  string       `json:"object"`
	Kind    string       `json:"kind,omitempty"`
	Kernels []KernelInfo `json:"kernels"`
}

type SelectBatchedRequest struct {
	B int `json:"b"`
	M int `json:"m"`
	N int `json:"n"`
	K int `json:"k"`
}

type GroupShape struct {
	M int `json:"m"`
	N int `json:"n"`
	K int `json:"k"`
}

type SelectGroupedRequest struct {
	Shapes []GroupShape `json:"shapes"`
	Kernel string       `json:"kernel,omitempty"`
}

type Extent struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
	Z uint32 `json:"z"`
}

// SelectionResponse reports the kernel the heuristic (or an override) picked
// for a shape, with the launch geometry the dispatcher would use.
type SelectionResponse struct {
	ID     string     `json:"id"`
	Object string     `json:"object"`
	Kind   string     `json:"kind"`
	Kernel KernelInfo `json:"kernel"`
	Grid   Extent     `json:"grid"`
	Block  Extent     `json:"block"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Backends string `json:"backends"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

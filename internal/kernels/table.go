package kernels

// The catalogue mirrors the variants compiled into the kernel image. Order
// matches the build manifest; registry maps are derived from these lists at
// init and never change afterwards.

var batchedConfigs = []Config{
	{TileM: 64, TileN: 16, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 16, TileK: 128, ClusterM: 1, ClusterN: 2, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 32, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 32, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 64, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 64, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 128, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 128, TileK: 128, ClusterM: 1, ClusterN: 2, ClusterK: 1, Pingpong: true},
	{TileM: 128, TileN: 64, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 128, TileN: 128, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 128, TileN: 128, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1},
	{TileM: 128, TileN: 128, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1},
	{TileM: 128, TileN: 128, TileK: 128, ClusterM: 1, ClusterN: 2, ClusterK: 1},
	{TileM: 128, TileN: 128, TileK: 128, ClusterM: 4, ClusterN: 1, ClusterK: 1},
	{TileM: 128, TileN: 256, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1},
	{TileM: 128, TileN: 256, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1},
	{TileM: 256, TileN: 128, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1},
	{TileM: 256, TileN: 256, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1},
}

var groupedConfigs = []Config{
	{TileM: 64, TileN: 16, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 32, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 32, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 64, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 64, TileK: 128, ClusterM: 1, ClusterN: 2, ClusterK: 1, Pingpong: true},
	{TileM: 64, TileN: 128, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 128, TileN: 64, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 128, TileN: 128, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1, Pingpong: true},
	{TileM: 128, TileN: 128, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1},
	{TileM: 128, TileN: 128, TileK: 128, ClusterM: 1, ClusterN: 2, ClusterK: 1},
	{TileM: 128, TileN: 256, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1},
	{TileM: 128, TileN: 256, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1},
	{TileM: 256, TileN: 128, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1},
	{TileM: 256, TileN: 128, TileK: 128, ClusterM: 4, ClusterN: 1, ClusterK: 1},
	{TileM: 256, TileN: 256, TileK: 128, ClusterM: 1, ClusterN: 1, ClusterK: 1},
	{TileM: 256, TileN: 256, TileK: 128, ClusterM: 2, ClusterN: 1, ClusterK: 1},
}

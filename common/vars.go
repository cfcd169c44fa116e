package common

// Version is set at build time with -ldflags "-X github.com/ruteri/trustmesh-backend/common.Version=..."
var Version = "dev"

// PackageName is the metrics namespace and default service name.
const PackageName = "trustmesh"

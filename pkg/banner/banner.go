package banner

import (
	"fmt"

	"kvnode/pkg/config"
)

const banner = `
██╗  ██╗██╗   ██╗███╗   ██╗ ██████╗ ██████╗ ███████╗
██║ ██╔╝██║   ██║████╗  ██║██╔═══██╗██╔══██╗██╔════╝
█████╔╝ ██║   ██║██╔██╗ ██║██║   ██║██║  ██║█████╗
██╔═██╗ ╚██╗ ██╔╝██║╚██╗██║██║   ██║██║  ██║██╔══╝
██║  ██╗ ╚████╔╝ ██║ ╚████║╚██████╔╝██████╔╝███████╗
╚═╝  ╚═╝  ╚═══╝  ╚═╝  ╚═══╝ ╚═════╝ ╚═════╝ ╚══════╝
`

// Print writes the startup banner using an already-resolved effective
// configuration.
func Print(eff config.EffectiveConfig, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:           %s (source: %s)\n", eff.Address, eff.Source["address"])
	fmt.Printf("Storage basepath: %s (source: %s)\n", eff.StorageBasepath, eff.Source["storage-basepath"])
	fmt.Printf("Worker threads:   %d (source: %s)\n", eff.WorkerThreads, eff.Source["worker-threads"])
	fmt.Printf("Storage queue:    %d (source: %s)\n", eff.StorageQueueSize, eff.Source["storage-queue-size"])
	fmt.Printf("Log queue:        %d (source: %s)\n", eff.TransactionQueueSize, eff.Source["transaction-queue-size"])
	fmt.Printf("Replay on start:  %v (source: %s)\n", eff.ReadLog, eff.Source["read-log"])
	fmt.Printf("On log corruption: %s (source: %s)\n", eff.LogOnCorruption, eff.Source["log-on-corruption"])
	if version != "" {
		fmt.Printf("Version:          %s\n", version)
	}

	fmt.Println("\n== Wire protocol ==============================================")
	fmt.Printf("nc %s\n", eff.Address)
	fmt.Println(`*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n  -> +OK`)
	fmt.Println(`*2\r\n$3\r\nGET\r\n$1\r\nk\r\n       -> $1\r\nv`)

	fmt.Println("\n== Persisted state =============================================")
	fmt.Printf("%s.current\n", eff.StorageBasepath)
}

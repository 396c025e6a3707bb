package banner

import (
	"fmt"
)

const banner = `
███████╗███████╗██████╗ ██████╗ ██████╗ ██╗██████╗  ██████╗ ███████╗
██╔════╝██╔════╝██╔══██╗██╔══██╗██╔══██╗██║██╔══██╗██╔════╝ ██╔════╝
█████╗  █████╗  ██║  ██║██████╔╝██████╔╝██║██║  ██║██║  ███╗█████╗
██╔══╝  ██╔══╝  ██║  ██║██╔══██╗██╔══██╗██║██║  ██║██║   ██║██╔══╝
██║     ███████╗██████╔╝██████╔╝██║  ██║██║██████╔╝╚██████╔╝███████╗
╚═╝     ╚══════╝╚═════╝ ╚═════╝ ╚═╝  ╚═╝╚═╝╚═════╝  ╚═════╝ ╚══════╝
`

// Print shows startup info on stdout.
func Print(addr, dbPath, host, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	fmt.Printf("Host:     %s\n", host)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /<acct>/salmon    - Accept a signed salmon slap for an account")
	fmt.Println("POST /<domain>/salmon  - Accept a signed salmon slap for a domain")
	fmt.Println("GET  /<domain>/magic-key - This domain's magic public key")
	fmt.Println("GET  /render?source=&target= - Render a stored relay record")
}

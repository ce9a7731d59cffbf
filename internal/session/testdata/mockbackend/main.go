// Command mockbackend stands in for a real backend process in tests: it
// announces a control-socket port on stdout exactly like the real thing,
// accepts one connection, and echoes every framed message it receives back
// as an OUTPUT_OTHER carrying the same first argument. Raw stdin is
// discarded so inbox writes never block.
package main

import (
	"fmt"
	"io"
	"net"
	"os"

	"sessiongate/internal/protocol"
)

func main() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	fmt.Printf("%d\n", port)

	go io.Copy(io.Discard, os.Stdin)

	conn, err := ln.Accept()
	if err != nil {
		os.Exit(1)
	}
	defer conn.Close()

	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, readErr := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				msg, consumed, result := protocol.Decode(buf)
				if result != protocol.Decoded {
					break
				}
				buf = buf[consumed:]
				reply := protocol.New(protocol.OutputOther, firstArgString(msg))
				conn.Write(protocol.Encode(nil, reply))
			}
		}
		if readErr != nil {
			return
		}
	}
}

func firstArgString(m protocol.Message) string {
	if len(m.Args) == 0 {
		return ""
	}
	return string(m.Args[0])
}

package mpdconn_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/halfwit/mpdq/internal/mpdconn"
)

// serveOne accepts one connection on ln, sends the MPD greeting, then
// answers every command line with resp (verbatim, including the
// trailing "OK\n"), until the client disconnects.
func serveOne(t *testing.T, ln net.Listener, resp map[string]string) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("OK MPD 0.23.0\n")); err != nil {
		return
	}
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := line
		if idx := strings.Index(line, " "); idx >= 0 {
			cmd = line[:idx]
		}
		if out, ok := resp[cmd]; ok {
			conn.Write([]byte(out))
		} else {
			conn.Write([]byte("OK\n"))
		}
	}
}

func TestDialAndStats(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go serveOne(t, ln, map[string]string{
		"stats": "db_update: 1234\nOK\n",
	})

	conn, err := mpdconn.Dial(ln.Addr().String(), "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	st, err := conn.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.DBUpdate != 1234 {
		t.Errorf("Stats().DBUpdate = %d; want 1234", st.DBUpdate)
	}
}

func TestDialRejectsBadGreeting(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("NOT MPD\n"))
	}()

	if _, err := mpdconn.Dial(ln.Addr().String(), ""); err == nil {
		t.Fatal("Dial() succeeded against a non-MPD greeting; want error")
	}
}

func TestListAllInfoParsesMultipleSongs(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go serveOne(t, ln, map[string]string{
		"listallinfo": "file: X\nArtist: A\nAlbum: L\nTitle: t1\nTrack: 1\n" +
			"file: Y\nArtist: B\nAlbum: M\nTitle: t2\nTrack: 1\nOK\n",
	})

	conn, err := mpdconn.Dial(ln.Addr().String(), "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	songs, err := conn.ListAllInfo(context.Background())
	if err != nil {
		t.Fatalf("ListAllInfo: %v", err)
	}
	if len(songs) != 2 || songs[0].File != "X" || songs[0].Artist != "A" || songs[1].File != "Y" {
		t.Errorf("ListAllInfo() = %+v; want two parsed songs", songs)
	}
}

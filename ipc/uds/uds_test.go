package uds

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kylelemons/godebug/pretty"
)

func TestUDS(t *testing.T) {
	socketAddr := filepath.Join(os.TempDir(), uuid.New().String())
	defer os.Remove(socketAddr)

	cred, _, err := Current()
	if err != nil {
		t.Fatalf("TestUDS: could not get current creds: %s", err)
	}

	serv, err := NewServer(socketAddr, 0770)
	if err != nil {
		t.Fatalf("TestUDS: could not create server: %s", err)
	}
	go func() {
		if err := <-serv.Closed(); err != nil {
			panic(err)
		}
	}()

	// The server decodes every message it receives and acks it.
	var got []interface{}
	serverDone := make(chan struct{})
	currentConns := sync.WaitGroup{}
	go func() {
		defer close(serverDone)
		for conn := range serv.Conn() {
			conn := conn
			currentConns.Add(1)

			if diff := pretty.Compare(cred, conn.Cred); diff != "" {
				panic(fmt.Sprintf("-want/+got creds:\n%s", diff))
			}

			go func() {
				defer currentConns.Done()
				dec := json.NewDecoder(&conn)
				m := Cred{}
				for {
					if err := dec.Decode(&m); err != nil {
						if err != io.EOF {
							got = append(got, err)
						}
						return
					}
					got = append(got, m)
					conn.Write([]byte("ack"))
				}
			}()
		}
	}()

	// Create client and send 10 messages.
	client, err := NewClient(socketAddr, []os.FileMode{0770, 1770})
	if err != nil {
		t.Fatalf("TestUDS: could not create client: %s", err)
	}

	credJSON, err := json.Marshal(cred)
	if err != nil {
		t.Fatalf("TestUDS: could not marshal creds: %s", err)
	}

	ackRecv := []byte("abcisaseasyas123") // Test we can read into a larger slice than the data.
	for i := 0; i < 10; i++ {
		ackRecv = ackRecv[:cap(ackRecv)]
		if _, err := client.Write(credJSON); err != nil {
			t.Fatalf("TestUDS: write %d: %s", i, err)
		}
		n, err := client.Read(ackRecv)
		if err != nil {
			t.Fatalf("TestUDS: read %d: %s", i, err)
		}
		ackRecv = ackRecv[:n]

		if string(ackRecv) != "ack" {
			t.Fatalf("TestUDS: waiting for ack, got %q", string(ackRecv))
		}
	}
	client.Close()
	currentConns.Wait()

	if err := serv.Close(); err != nil {
		t.Fatalf("TestUDS: close: %s", err)
	}
	<-serverDone

	want := []interface{}{}
	for i := 0; i < 10; i++ {
		want = append(want, cred)
	}

	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestUDS: -want/+got:\n%s", diff)
	}
}

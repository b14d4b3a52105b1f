// Команда prograde подключается к серверу телеметрии, запрашивает активное
// судно и печатает его вектор прогрейда в виде "x y z".
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/annel0/flight-telemetry/client"
)

func main() {
	addr := flag.String("addr", client.DefaultAddr, "адрес сервера телеметрии")
	username := flag.String("user", "", "логин оператора (пусто — анонимный доступ)")
	password := flag.String("pass", "", "пароль оператора")
	useKCP := flag.Bool("kcp", false, "подключаться по KCP вместо TCP")
	timeout := flag.Duration("timeout", 10*time.Second, "таймаут подключения и запросов")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts := []client.Option{client.WithTimeout(*timeout)}
	if *username != "" {
		opts = append(opts, client.WithCredentials(*username, *password))
	}
	if *useKCP {
		opts = append(opts, client.WithKCP())
	}

	c, err := client.Connect(ctx, *addr, opts...)
	if err != nil {
		log.Fatalf("подключение к %s: %v", *addr, err)
	}
	defer c.Close()

	vessel, err := c.ActiveVessel(ctx)
	if err != nil {
		log.Fatalf("запрос активного судна: %v", err)
	}

	prograde, err := vessel.Flight().Prograde(ctx)
	if err != nil {
		log.Fatalf("запрос вектора прогрейда: %v", err)
	}

	fmt.Printf("%v %v %v\n", prograde.X, prograde.Y, prograde.Z)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/flight-telemetry/client"
)

func main() {
	var (
		serverAddr = flag.String("server", client.DefaultAddr, "Telemetry server address")
		command    = flag.String("cmd", "vessels", "Command: vessels, flight, stream, ping")
		vesselID   = flag.String("vessel", "", "Vessel ID (empty = active vessel)")
		rateHz     = flag.Int("rate", 0, "Stream rate in Hz (0 = server default)")
		username   = flag.String("user", "", "Operator username")
		password   = flag.String("pass", "", "Operator password")
		useKCP     = flag.Bool("kcp", false, "Connect over KCP instead of TCP")
		timeout    = flag.Duration("timeout", 10*time.Second, "Request timeout")
	)
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

	c, err := client.Connect(ctx, *serverAddr, opts...)
	if err != nil {
		log.Fatalf("❌ Failed to connect to server: %v", err)
	}
	defer c.Close()

	switch *command {
	case "vessels":
		if err := listVessels(ctx, c); err != nil {
			log.Fatalf("❌ Vessels failed: %v", err)
		}

	case "flight":
		if err := showFlight(ctx, c, *vesselID); err != nil {
			log.Fatalf("❌ Flight failed: %v", err)
		}

	case "stream":
		if err := streamFlight(c, *vesselID, *rateHz); err != nil {
			log.Fatalf("❌ Stream failed: %v", err)
		}

	case "ping":
		if err := pingServer(ctx, c); err != nil {
			log.Fatalf("❌ Ping failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: vessels, flight, stream, ping")
		os.Exit(1)
	}
}

// listVessels выводит список судов симуляции
func listVessels(ctx context.Context, c *client.Client) error {
	vessels, err := c.Vessels(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("🛰  Vessels: %d\n", len(vessels))
	for _, v := range vessels {
		marker := " "
		if v.Active {
			marker = "*"
		}
		fmt.Printf(" %s %-20s %-12s %s\n", marker, v.Name, v.State, v.ID)
	}
	return nil
}

// showFlight выводит полный кадр телеметрии судна
func showFlight(ctx context.Context, c *client.Client, vesselID string) error {
	var vessel *client.Vessel
	var err error
	if vesselID == "" {
		vessel, err = c.ActiveVessel(ctx)
		if err != nil {
			return err
		}
	} else {
		vessel = c.Vessel(vesselID)
	}

	fd, err := vessel.Flight().Data(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("🛰  %s (%s) t=%.1fs\n", displayName(vessel), fd.State, fd.SimTime)
	fmt.Printf("  Position:   %.1f %.1f %.1f\n", fd.Position.X, fd.Position.Y, fd.Position.Z)
	fmt.Printf("  Velocity:   %.1f %.1f %.1f\n", fd.Velocity.X, fd.Velocity.Y, fd.Velocity.Z)
	fmt.Printf("  Prograde:   %.4f %.4f %.4f\n", fd.Prograde.X, fd.Prograde.Y, fd.Prograde.Z)
	fmt.Printf("  Retrograde: %.4f %.4f %.4f\n", fd.Retrograde.X, fd.Retrograde.Y, fd.Retrograde.Z)
	fmt.Printf("  Normal:     %.4f %.4f %.4f\n", fd.Normal.X, fd.Normal.Y, fd.Normal.Z)
	fmt.Printf("  Radial:     %.4f %.4f %.4f\n", fd.Radial.X, fd.Radial.Y, fd.Radial.Z)
	fmt.Printf("  Speed:      %.1f m/s\n", fd.Speed)
	fmt.Printf("  Altitude:   %.0f m\n", fd.Altitude)
	if fd.Escape {
		fmt.Printf("  Apoapsis:   — (escape trajectory)\n")
	} else {
		fmt.Printf("  Apoapsis:   %.0f m\n", fd.Apoapsis)
	}
	fmt.Printf("  Periapsis:  %.0f m\n", fd.Periapsis)
	return nil
}

// displayName возвращает имя судна, а для хэндла, созданного по
// идентификатору, где имя неизвестно, — сам идентификатор
func displayName(v *client.Vessel) string {
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}

// streamFlight подписывается на поток телеметрии и печатает кадры до Ctrl+C
func streamFlight(c *client.Client, vesselID string, rateHz int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := c.StreamFlight(ctx, vesselID, rateHz)
	if err != nil {
		return err
	}
	fmt.Printf("🎬 Streaming at %d Hz (Ctrl+C to stop)\n", stream.RateHz)

	frameCount := 0
	for {
		select {
		case fd, ok := <-stream.C:
			if !ok {
				fmt.Printf("\n📊 Total frames: %d\n", frameCount)
				return nil
			}
			fmt.Printf("[%s] %-12s alt=%-9.0f spd=%-8.1f prograde=(%.3f %.3f %.3f)\n",
				time.Now().Format("15:04:05"),
				fd.State, fd.Altitude, fd.Speed,
				fd.Prograde.X, fd.Prograde.Y, fd.Prograde.Z)
			frameCount++

		case <-ctx.Done():
			closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := stream.Close(closeCtx)
			cancel()
			fmt.Printf("\n📊 Total frames: %d\n", frameCount)
			return err
		}
	}
}

// pingServer измеряет круговую задержку до сервера
func pingServer(ctx context.Context, c *client.Client) error {
	for i := 0; i < 4; i++ {
		rtt, err := c.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("🏓 RTT: %v\n", rtt)
		time.Sleep(500 * time.Millisecond)
	}
	return nil
}

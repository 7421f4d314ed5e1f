// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"

	"github.com/shielddns/shielddns/network"
	"github.com/songgao/water"
	"github.com/vishvananda/netlink"
)

type tunDevice struct {
	*water.Interface
	link netlink.Link
	mtu  int
}

var _ network.IPDevice = (*tunDevice)(nil)

// pollableTunDevice is a [tunDevice] whose reads can be interrupted, so the router stops without waiting for
// the next packet.
type pollableTunDevice struct {
	*tunDevice
	network.ReadDeadliner
}

// newTunDevice creates the TUN interface, assigns its address and brings it up.
func newTunDevice(cfg tunConfig) (_ network.IPDevice, err error) {
	if len(cfg.Name) == 0 {
		return nil, errors.New("name is required for TUN device")
	}
	prefix, err := (&config{TUN: cfg}).tunPrefix()
	if err != nil {
		return nil, err
	}

	tun, err := water.New(water.Config{
		DeviceType: water.TUN,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name:    cfg.Name,
			Persist: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create TUN device: %w", err)
	}
	defer func() {
		if err != nil {
			tun.Close()
		}
	}()

	link, err := netlink.LinkByName(tun.Name())
	if err != nil {
		return nil, fmt.Errorf("newly created TUN device '%s' not found: %w", tun.Name(), err)
	}
	dev := &tunDevice{Interface: tun, link: link, mtu: cfg.MTU}
	if err := dev.configure(prefix.String()); err != nil {
		return nil, err
	}
	if rd, ok := tun.ReadWriteCloser.(network.ReadDeadliner); ok {
		return &pollableTunDevice{tunDevice: dev, ReadDeadliner: rd}, nil
	}
	return dev, nil
}

func (d *tunDevice) MTU() int {
	return d.mtu
}

func (d *tunDevice) Write(b []byte) (int, error) {
	if len(b) > d.mtu {
		return 0, network.ErrMsgSize
	}
	return d.Interface.Write(b)
}

func (d *tunDevice) configure(subnet string) error {
	addr, err := netlink.ParseAddr(subnet)
	if err != nil {
		return fmt.Errorf("subnet address '%s' is not valid: %w", subnet, err)
	}
	if err := netlink.AddrAdd(d.link, addr); err != nil {
		return fmt.Errorf("failed to add subnet to TUN device '%s': %w", d.Name(), err)
	}
	if err := netlink.LinkSetMTU(d.link, d.mtu); err != nil {
		return fmt.Errorf("failed to set MTU of TUN device '%s': %w", d.Name(), err)
	}
	if err := netlink.LinkSetUp(d.link); err != nil {
		return fmt.Errorf("failed to bring TUN device '%s' up: %w", d.Name(), err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/lop69/BELL-SYSTEM-V2/core/device"
)

func (cli *commandLine) addDevice(id, name, groupID string) error {
	nd := device.NewDevice{ID: id, DeviceName: name, ScheduleGroupID: groupID}
	if err := nd.Validate(cli.validate); err != nil {
		return err
	}
	dev, err := cli.devSvc.Register(context.Background(), nd)
	if err != nil {
		return err
	}
	fmt.Printf("device %q registered as %s\n", dev.DeviceName, dev.ID)
	return nil
}

func (cli *commandLine) sendSummary() error {
	n, err := cli.mailer.SendDaily(context.Background(), nowFunc())
	if err != nil {
		return err
	}
	fmt.Printf("daily summary sent to %d users\n", n)
	return nil
}

// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

// Copyright notice of this program
const notice = `SatChange Copyright (c) the SatChange authors
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.
`

// Licensing information
const legal = notice + `
The binary version of this program uses several open source libraries and components, which come with their own licensing terms:

| Library                                                                                  | License type                            | Usage    |
|------------------------------------------------------------------------------------------|-----------------------------------------|----------|
| [github.com/edisonguo/govaluate](https://github.com/edisonguo/govaluate)                 | MIT License                             |          |
| [github.com/gin-gonic/gin](https://github.com/gin-gonic/gin)                             | MIT License                             |          |
| [github.com/go-playground/validator/](https://github.com/go-playground/validator/)       | MIT License                             | indirect |
| [github.com/klauspost/cpuid](https://github.com/klauspost/cpuid)                         | MIT License                             |          |
| [github.com/knadh/koanf](https://github.com/knadh/koanf)                                 | MIT License                             |          |
| [github.com/lucasb-eyer/go-colorful](https://github.com/lucasb-eyer/go-colorful)         | MIT License                             |          |
| [github.com/lukeroth/gdal](https://github.com/lukeroth/gdal)                             | MIT License                             |          |
| [github.com/pbnjay/memory](https://github.com/pbnjay/memory)                             | BSD 3-Clause "New" or "Revised" License |          |
| [github.com/prometheus/client_golang](https://github.com/prometheus/client_golang)       | Apache 2.0 License                      |          |
| [github.com/valyala/fastrand](https://github.com/valyala/fastrand)                       | MIT License                             |          |
| [golang.org/x/image](https://golang.org/x/image)                                         | BSD 3-Clause                            |          |
| [golang.org/x/sys](https://golang.org/x/sys)                                             | BSD 3-Clause                            | indirect |
| [gonum.org/v1/gonum](https://gonum.org/v1/gonum)                                         | BSD 3-Clause "New" or "Revised" License |          |
| [google.golang.org/protobuf](https://google.golang.org/protobuf)                         | BSD 3-Clause                            | indirect |
| [gopkg.in/yaml.v3](https://gopkg.in/yaml.v3)                                             | MIT and Apache 2.0 License              |          |
| [GDAL](https://gdal.org)                                                                 | MIT License                             | runtime  |
`
